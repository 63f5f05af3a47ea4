package script

import "strings"

// allowedDunders is the fixed allow-list of underscore-prefixed names that
// the attribute guard admits: introspection plus operator-overload names.
var allowedDunders = map[string]bool{
	"__len__": true, "__iter__": true, "__next__": true, "__getitem__": true,
	"__contains__": true, "__str__": true, "__repr__": true, "__bool__": true,
	"__eq__": true, "__ne__": true, "__lt__": true, "__le__": true,
	"__gt__": true, "__ge__": true, "__hash__": true, "__add__": true,
	"__sub__": true, "__mul__": true, "__truediv__": true, "__floordiv__": true,
	"__mod__": true, "__pow__": true, "__neg__": true, "__pos__": true,
	"__abs__": true, "__class__": true, "__name__": true, "__doc__": true,
}

// blockedNames never resolve inside the sandbox. A guarded attribute probe
// for any of them is a sandbox violation rather than a plain miss.
var blockedNames = map[string]bool{
	"eval": true, "exec": true, "compile": true, "open": true,
	"__import__": true, "input": true, "breakpoint": true,
}

// guardAttr mediates every attribute read. Underscore names outside the
// allow-list are violations; admitted names go through the safe lookup in
// object.go, which knows no escape routes to type objects, frames or code.
func (it *Interp) guardAttr(obj Value, name string) (Value, error) {
	if blockedNames[name] {
		return nil, Raise(ClassSandboxError, "Access to '%s' is not allowed", name)
	}
	if strings.HasPrefix(name, "_") && !allowedDunders[name] {
		return nil, Raise(ClassSandboxError, "Access to '%s' is not allowed", name)
	}
	return attrLookup(it, obj, name)
}

// guardItem mediates every subscript read.
func (it *Interp) guardItem(obj Value, key Value) (Value, error) {
	if s, ok := key.(*Slice); ok {
		return sliceValue(obj, s)
	}
	return getItem(obj, key)
}

// guardIter mediates iteration.
func (it *Interp) guardIter(v Value) ([]Value, error) {
	return Iterate(v)
}

// guardIterUnpack mediates iterable unpacking into exactly n targets.
func (it *Interp) guardIterUnpack(v Value, n int) ([]Value, error) {
	items, err := it.guardIter(v)
	if err != nil {
		return nil, err
	}
	if len(items) < n {
		return nil, Raise(ClassValueError, "not enough values to unpack (expected %d, got %d)", n, len(items))
	}
	if len(items) > n {
		return nil, Raise(ClassValueError, "too many values to unpack (expected %d)", n)
	}
	return items, nil
}

// guardWriteItem mediates subscript assignment. Only the mutable container
// types accept writes.
func (it *Interp) guardWriteItem(obj Value, key, v Value) error {
	switch t := obj.(type) {
	case *List:
		idx, ok := key.(int64)
		if !ok {
			if b, isB := key.(bool); isB {
				idx = 0
				if b {
					idx = 1
				}
			} else {
				return Raise(ClassTypeError, "list indices must be integers, not %s", TypeName(key))
			}
		}
		n := int64(len(t.Items))
		if idx < 0 {
			idx += n
		}
		if idx < 0 || idx >= n {
			return Raise(ClassIndexError, "list assignment index out of range")
		}
		t.Items[idx] = v
		return nil
	case *Dict:
		return t.Set(key, v)
	case *Tuple, string:
		return Raise(ClassTypeError, "'%s' object does not support item assignment", TypeName(obj))
	default:
		return Raise(ClassSandboxError, "Writes to '%s' objects are not allowed", TypeName(obj))
	}
}

// guardWriteAttr mediates attribute assignment. The sandbox has no user
// classes, so every attribute write is a violation.
func (it *Interp) guardWriteAttr(obj Value, name string, v Value) error {
	return Raise(ClassSandboxError, "Attribute assignment on '%s' objects is not allowed", TypeName(obj))
}

// guardImport admits only the fixed module allow-list. The list is part of
// the external contract; removing an entry is a breaking change.
func (it *Interp) guardImport(name string) (*Module, error) {
	mod, ok := moduleRegistry()[name]
	if !ok {
		return nil, Raise(ClassSandboxError, "Import of '%s' is not allowed", name)
	}
	return mod(it), nil
}

// getItem implements subscript reads across the container types and host
// objects.
func getItem(obj Value, key Value) (Value, error) {
	switch t := obj.(type) {
	case string:
		runes := []rune(t)
		idx, err := indexFor(key, int64(len(runes)), "string")
		if err != nil {
			return nil, err
		}
		return string(runes[idx]), nil
	case *List:
		idx, err := indexFor(key, int64(len(t.Items)), "list")
		if err != nil {
			return nil, err
		}
		return t.Items[idx], nil
	case *Tuple:
		idx, err := indexFor(key, int64(len(t.Items)), "tuple")
		if err != nil {
			return nil, err
		}
		return t.Items[idx], nil
	case *Dict:
		v, present, err := t.Get(key)
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, Raise(ClassKeyError, "%s", Repr(key))
		}
		return v, nil
	case *Range:
		idx, err := indexFor(key, t.Len(), "range")
		if err != nil {
			return nil, err
		}
		return t.Start + idx*t.Step, nil
	default:
		return nil, Raise(ClassTypeError, "'%s' object is not subscriptable", TypeName(obj))
	}
}

func indexFor(key Value, length int64, kind string) (int64, error) {
	idx, ok := intOperand(key)
	if !ok {
		return 0, Raise(ClassTypeError, "%s indices must be integers, not %s", kind, TypeName(key))
	}
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, Raise(ClassIndexError, "%s index out of range", kind)
	}
	return idx, nil
}

// sliceValue implements extended slicing on sequences.
func sliceValue(obj Value, s *Slice) (Value, error) {
	switch t := obj.(type) {
	case string:
		runes := []rune(t)
		idxs, err := sliceIndices(s, int64(len(runes)))
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for _, i := range idxs {
			b.WriteRune(runes[i])
		}
		return b.String(), nil
	case *List:
		idxs, err := sliceIndices(s, int64(len(t.Items)))
		if err != nil {
			return nil, err
		}
		out := make([]Value, len(idxs))
		for j, i := range idxs {
			out[j] = t.Items[i]
		}
		return &List{Items: out}, nil
	case *Tuple:
		idxs, err := sliceIndices(s, int64(len(t.Items)))
		if err != nil {
			return nil, err
		}
		out := make([]Value, len(idxs))
		for j, i := range idxs {
			out[j] = t.Items[i]
		}
		return &Tuple{Items: out}, nil
	default:
		return nil, Raise(ClassTypeError, "'%s' object is not subscriptable", TypeName(obj))
	}
}

// sliceIndices resolves a slice against a sequence length, with the usual
// clamping and negative-index rules.
func sliceIndices(s *Slice, length int64) ([]int64, error) {
	step := int64(1)
	if s.Step != nil {
		v, ok := intOperand(s.Step)
		if !ok {
			return nil, Raise(ClassTypeError, "slice indices must be integers or None")
		}
		if v == 0 {
			return nil, Raise(ClassValueError, "slice step cannot be zero")
		}
		step = v
	}

	resolve := func(v Value, def int64) (int64, error) {
		if v == nil {
			return def, nil
		}
		n, ok := intOperand(v)
		if !ok {
			return 0, Raise(ClassTypeError, "slice indices must be integers or None")
		}
		if n < 0 {
			n += length
		}
		return n, nil
	}

	var start, stop int64
	var err error
	if step > 0 {
		if start, err = resolve(s.Start, 0); err != nil {
			return nil, err
		}
		if stop, err = resolve(s.Stop, length); err != nil {
			return nil, err
		}
		if start < 0 {
			start = 0
		}
		if stop > length {
			stop = length
		}
		var idxs []int64
		for i := start; i < stop; i += step {
			idxs = append(idxs, i)
		}
		return idxs, nil
	}

	if start, err = resolve(s.Start, length-1); err != nil {
		return nil, err
	}
	if stop, err = resolve(s.Stop, -length-1); err != nil {
		return nil, err
	}
	if start >= length {
		start = length - 1
	}
	var idxs []int64
	for i := start; i > stop && i >= 0; i += step {
		idxs = append(idxs, i)
	}
	return idxs, nil
}
