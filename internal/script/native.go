package script

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ToNative converts a script value into a JSON-shaped Go value. Host objects
// that implement Dumper serialize themselves; anything else falls back to its
// string form.
func ToNative(v Value) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string:
		return t, nil
	case *List:
		return seqToNative(t.Items)
	case *Tuple:
		return seqToNative(t.Items)
	case *Set:
		return seqToNative(t.Values())
	case *Range:
		items, err := Iterate(t)
		if err != nil {
			return nil, err
		}
		return seqToNative(items)
	case *Dict:
		out := make(map[string]any, t.Size())
		for _, e := range t.entries {
			nv, err := ToNative(e.value)
			if err != nil {
				return nil, err
			}
			out[Str(e.key)] = nv
		}
		return out, nil
	case Dumper:
		return t.Dump(), nil
	default:
		return Str(v), nil
	}
}

// Dumper lets a host object provide its own JSON-shaped serialization, the
// way model objects expose a dump method.
type Dumper interface {
	Dump() any
}

func seqToNative(items []Value) (any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		nv, err := ToNative(item)
		if err != nil {
			return nil, err
		}
		out[i] = nv
	}
	return out, nil
}

// FromNative converts a JSON-shaped Go value into a script value. Numbers
// decoded with json.Number keep integers integral.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case string:
		return t, nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t == float64(int64(t)) && t >= -1e15 && t <= 1e15 {
			return int64(t), nil
		}
		return t, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.String())
		}
		return f, nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			sv, err := FromNative(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return &List{Items: items}, nil
	case map[string]any:
		d := NewDict()
		// Deterministic key order keeps behavior stable across runs.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sv, err := FromNative(t[k])
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("cannot convert %T into a sandbox value", v)
	}
}
