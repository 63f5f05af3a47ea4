package script

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Value is any script-visible value. Concrete representations:
//
//	nil        → None
//	bool       → bool
//	int64      → int
//	float64    → float
//	string     → str
//	*List      → list
//	*Tuple     → tuple
//	*Dict      → dict
//	*Set       → set
//	*Range     → range
//	*Slice     → slice
//	*Builtin   → builtin function
//	*Function  → user function
//	*Module    → imported module
//	*Class     → type / exception class
//	*ExcValue  → raised exception instance
//	Object     → host object (deferred operations, regex matches, ...)
type Value any

// List is a mutable sequence.
type List struct {
	Items []Value
}

// NewList wraps items in a List.
func NewList(items ...Value) *List { return &List{Items: items} }

// Tuple is an immutable sequence.
type Tuple struct {
	Items []Value
}

// dictEntry preserves insertion order inside Dict.
type dictEntry struct {
	key   Value
	value Value
}

// Dict is an insertion-ordered mapping with hashable keys.
type Dict struct {
	entries []dictEntry
	index   map[string]int
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

// Set stores one value per hash key, insertion ordered.
type Set struct {
	items []Value
	index map[string]int
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Range is the lazy integer sequence produced by range().
type Range struct {
	Start, Stop, Step int64
}

// Len returns the number of elements the range yields.
func (r *Range) Len() int64 {
	if r.Step > 0 {
		if r.Stop <= r.Start {
			return 0
		}
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Stop >= r.Start {
		return 0
	}
	step := -r.Step
	return (r.Start - r.Stop + step - 1) / step
}

// Slice is the value produced by slice() and by a:b:c subscript syntax.
type Slice struct {
	Start, Stop, Step Value
}

// Builtin is a native function exposed to scripts.
type Builtin struct {
	Name string
	Fn   func(it *Interp, args []Value, kwargs map[string]Value) (Value, error)
}

// Param describes one function parameter with an optional default.
type Param struct {
	Name    string
	Default Expr
}

// Function is a script-defined function.
type Function struct {
	Name   string
	Params []Param
	Body   []Stmt
	Doc    string
	IsLambda bool
}

// Module is an importable module object.
type Module struct {
	Name  string
	Attrs map[string]Value
}

// ExcValue is an instantiated exception.
type ExcValue struct {
	Class   *Class
	Args    []Value
	Message string
}

// Object is implemented by host values surfaced inside the sandbox. Attr is
// consulted only after the attribute guard admits the name.
type Object interface {
	TypeName() string
	Attr(name string) (Value, error)
}

// Truther lets a host object control (or refuse) boolean coercion.
type Truther interface {
	Truth() (bool, error)
}

// Lenner lets a host object control (or refuse) len().
type Lenner interface {
	Len() (int64, error)
}

// Iterable lets a host object control (or refuse) iteration.
type Iterable interface {
	Iter() ([]Value, error)
}

// Stringer lets a host object control str().
type Stringer interface {
	Str() string
}

// TypeName returns the script-language type label for a value.
func TypeName(v Value) string {
	switch t := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case *Tuple:
		return "tuple"
	case *Dict:
		return "dict"
	case *Set:
		return "set"
	case *Range:
		return "range"
	case *Slice:
		return "slice"
	case *Builtin:
		return "builtin_function_or_method"
	case *Function:
		return "function"
	case *Module:
		return "module"
	case *Class:
		return "type"
	case *ExcValue:
		return t.Class.Name
	case Object:
		return t.TypeName()
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Truth computes boolean coercion. Host objects may refuse (a pending
// deferred operation raises its signal here).
func Truth(v Value) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		return t != "", nil
	case *List:
		return len(t.Items) > 0, nil
	case *Tuple:
		return len(t.Items) > 0, nil
	case *Dict:
		return len(t.entries) > 0, nil
	case *Set:
		return len(t.items) > 0, nil
	case *Range:
		return t.Len() > 0, nil
	case Truther:
		return t.Truth()
	default:
		return true, nil
	}
}

// Len computes len(). Host objects may refuse.
func Len(v Value) (int64, error) {
	switch t := v.(type) {
	case string:
		return int64(len([]rune(t))), nil
	case *List:
		return int64(len(t.Items)), nil
	case *Tuple:
		return int64(len(t.Items)), nil
	case *Dict:
		return int64(len(t.entries)), nil
	case *Set:
		return int64(len(t.items)), nil
	case *Range:
		return t.Len(), nil
	case Lenner:
		return t.Len()
	default:
		return 0, Raise(ClassTypeError, "object of type '%s' has no len()", TypeName(v))
	}
}

// hashKey returns a stable map key for hashable values, or an error for
// unhashable ones.
func hashKey(v Value) (string, error) {
	switch t := v.(type) {
	case nil:
		return "N", nil
	case bool:
		if t {
			return "i1", nil
		}
		return "i0", nil
	case int64:
		return "i" + strconv.FormatInt(t, 10), nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return "i" + strconv.FormatInt(int64(t), 10), nil
		}
		return "f" + strconv.FormatFloat(t, 'g', -1, 64), nil
	case string:
		return "s" + t, nil
	case *Tuple:
		var b strings.Builder
		b.WriteString("t(")
		for _, item := range t.Items {
			k, err := hashKey(item)
			if err != nil {
				return "", err
			}
			b.WriteString(k)
			b.WriteByte(',')
		}
		b.WriteByte(')')
		return b.String(), nil
	default:
		return "", Raise(ClassTypeError, "unhashable type: '%s'", TypeName(v))
	}
}

// Dict operations.

// Get looks up a key; the second return reports presence.
func (d *Dict) Get(key Value) (Value, bool, error) {
	k, err := hashKey(key)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[k]
	if !ok {
		return nil, false, nil
	}
	return d.entries[i].value, true, nil
}

// Set stores a key/value pair, preserving first-insertion order.
func (d *Dict) Set(key, value Value) error {
	k, err := hashKey(key)
	if err != nil {
		return err
	}
	if i, ok := d.index[k]; ok {
		d.entries[i].value = value
		return nil
	}
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value})
	return nil
}

// Delete removes a key; reports whether it was present.
func (d *Dict) Delete(key Value) (bool, error) {
	k, err := hashKey(key)
	if err != nil {
		return false, err
	}
	i, ok := d.index[k]
	if !ok {
		return false, nil
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, k)
	for kk, ii := range d.index {
		if ii > i {
			d.index[kk] = ii - 1
		}
	}
	return true, nil
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []Value {
	keys := make([]Value, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

// Values returns values in insertion order.
func (d *Dict) Values() []Value {
	values := make([]Value, len(d.entries))
	for i, e := range d.entries {
		values[i] = e.value
	}
	return values
}

// Items returns (key, value) tuples in insertion order.
func (d *Dict) Items() []Value {
	items := make([]Value, len(d.entries))
	for i, e := range d.entries {
		items[i] = &Tuple{Items: []Value{e.key, e.value}}
	}
	return items
}

// Size returns the entry count.
func (d *Dict) Size() int { return len(d.entries) }

// Set operations.

// Add inserts a value if absent.
func (s *Set) Add(v Value) error {
	k, err := hashKey(v)
	if err != nil {
		return err
	}
	if _, ok := s.index[k]; ok {
		return nil
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, v)
	return nil
}

// Has reports membership.
func (s *Set) Has(v Value) (bool, error) {
	k, err := hashKey(v)
	if err != nil {
		return false, err
	}
	_, ok := s.index[k]
	return ok, nil
}

// Remove deletes a value; reports whether it was present.
func (s *Set) Remove(v Value) (bool, error) {
	k, err := hashKey(v)
	if err != nil {
		return false, err
	}
	i, ok := s.index[k]
	if !ok {
		return false, nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, k)
	for kk, ii := range s.index {
		if ii > i {
			s.index[kk] = ii - 1
		}
	}
	return true, nil
}

// Values returns members in insertion order.
func (s *Set) Values() []Value { return append([]Value(nil), s.items...) }

// Size returns the member count.
func (s *Set) Size() int { return len(s.items) }

// Equal implements == semantics across value kinds.
func Equal(a, b Value) (bool, error) {
	switch x := a.(type) {
	case nil:
		return b == nil, nil
	case bool:
		if y, ok := b.(bool); ok {
			return x == y, nil
		}
		// bool compares equal to its numeric value
		if bi, bf, ok := asNumber(b); ok {
			xi := int64(0)
			if x {
				xi = 1
			}
			if bf {
				return float64(xi) == numAsFloat(b), nil
			}
			return xi == bi, nil
		}
		return false, nil
	case int64:
		if _, isFloat, ok := asNumber(b); ok {
			if isFloat {
				return float64(x) == numAsFloat(b), nil
			}
			return x == numAsInt(b), nil
		}
		return false, nil
	case float64:
		if _, _, ok := asNumber(b); ok {
			return x == numAsFloat(b), nil
		}
		return false, nil
	case string:
		y, ok := b.(string)
		return ok && x == y, nil
	case *List:
		y, ok := b.(*List)
		if !ok {
			return false, nil
		}
		return seqEqual(x.Items, y.Items)
	case *Tuple:
		y, ok := b.(*Tuple)
		if !ok {
			return false, nil
		}
		return seqEqual(x.Items, y.Items)
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Size() != y.Size() {
			return false, nil
		}
		for _, e := range x.entries {
			ov, present, err := y.Get(e.key)
			if err != nil || !present {
				return false, err
			}
			eq, err := Equal(e.value, ov)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *Set:
		y, ok := b.(*Set)
		if !ok || x.Size() != y.Size() {
			return false, nil
		}
		for _, item := range x.items {
			has, err := y.Has(item)
			if err != nil || !has {
				return false, err
			}
		}
		return true, nil
	case *Class:
		return a == b, nil
	default:
		return a == b, nil
	}
}

func seqEqual(a, b []Value) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		eq, err := Equal(a[i], b[i])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// Compare implements ordering for <, <=, >, >=. Mixed numeric kinds compare
// numerically; otherwise both operands must share a comparable type.
func Compare(a, b Value) (int, error) {
	if _, _, aok := asNumber(a); aok {
		if _, _, bok := asNumber(b); bok {
			af, bf := numAsFloat(a), numAsFloat(b)
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	if x, ok := a.(*List); ok {
		if y, ok := b.(*List); ok {
			return seqCompare(x.Items, y.Items)
		}
	}
	if x, ok := a.(*Tuple); ok {
		if y, ok := b.(*Tuple); ok {
			return seqCompare(x.Items, y.Items)
		}
	}
	return 0, Raise(ClassTypeError, "'<' not supported between instances of '%s' and '%s'", TypeName(a), TypeName(b))
}

func seqCompare(a, b []Value) (int, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		eq, err := Equal(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if !eq {
			return Compare(a[i], b[i])
		}
	}
	switch {
	case len(a) < len(b):
		return -1, nil
	case len(a) > len(b):
		return 1, nil
	default:
		return 0, nil
	}
}

// asNumber reports whether v is numeric (bool counts) and whether it is a
// float.
func asNumber(v Value) (int64, bool, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, false, true
		}
		return 0, false, true
	case int64:
		return t, false, true
	case float64:
		return 0, true, true
	default:
		return 0, false, false
	}
}

func numAsFloat(v Value) float64 {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case int64:
		return float64(t)
	case float64:
		return t
	}
	return 0
}

func numAsInt(v Value) int64 {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case int64:
		return t
	case float64:
		return int64(t)
	}
	return 0
}

// Str renders the str() form of a value.
func Str(v Value) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatFloat(t)
	case string:
		return t
	case Stringer:
		return t.Str()
	case *ExcValue:
		return t.Message
	default:
		return Repr(v)
	}
}

// Repr renders the debug form of a value.
func Repr(v Value) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatFloat(t)
	case string:
		return quoteString(t)
	case *List:
		return reprSeq(t.Items, "[", "]")
	case *Tuple:
		if len(t.Items) == 1 {
			return "(" + Repr(t.Items[0]) + ",)"
		}
		return reprSeq(t.Items, "(", ")")
	case *Dict:
		var b strings.Builder
		b.WriteByte('{')
		for i, e := range t.entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Repr(e.key))
			b.WriteString(": ")
			b.WriteString(Repr(e.value))
		}
		b.WriteByte('}')
		return b.String()
	case *Set:
		if len(t.items) == 0 {
			return "set()"
		}
		return reprSeq(t.items, "{", "}")
	case *Range:
		if t.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", t.Start, t.Stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", t.Start, t.Stop, t.Step)
	case *Slice:
		return fmt.Sprintf("slice(%s, %s, %s)", Repr(t.Start), Repr(t.Stop), Repr(t.Step))
	case *Builtin:
		return fmt.Sprintf("<built-in function %s>", t.Name)
	case *Function:
		if t.IsLambda {
			return "<lambda>"
		}
		return fmt.Sprintf("<function %s>", t.Name)
	case *Module:
		return fmt.Sprintf("<module '%s'>", t.Name)
	case *Class:
		return t.String()
	case *ExcValue:
		return fmt.Sprintf("%s(%s)", t.Class.Name, quoteString(t.Message))
	case Stringer:
		return t.Str()
	default:
		return fmt.Sprintf("<%s>", TypeName(v))
	}
}

func reprSeq(items []Value, open, close string) string {
	var b strings.Builder
	b.WriteString(open)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Repr(item))
	}
	b.WriteString(close)
	return b.String()
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func quoteString(s string) string {
	// Single-quote preferred, like the language the scripts are written in.
	if !strings.Contains(s, "'") || strings.Contains(s, `"`) {
		q := strconv.Quote(s)
		q = q[1 : len(q)-1]
		q = strings.ReplaceAll(q, `\"`, `"`)
		q = strings.ReplaceAll(q, `'`, `\'`)
		return "'" + q + "'"
	}
	return strconv.Quote(s)
}

// Iterate yields the elements of any iterable value. Host objects may refuse
// (a pending deferred operation raises here).
func Iterate(v Value) ([]Value, error) {
	switch t := v.(type) {
	case string:
		runes := []rune(t)
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = string(r)
		}
		return items, nil
	case *List:
		return append([]Value(nil), t.Items...), nil
	case *Tuple:
		return append([]Value(nil), t.Items...), nil
	case *Dict:
		return t.Keys(), nil
	case *Set:
		return t.Values(), nil
	case *Range:
		n := t.Len()
		items := make([]Value, 0, n)
		for i, v := int64(0), t.Start; i < n; i, v = i+1, v+t.Step {
			items = append(items, v)
		}
		return items, nil
	case Iterable:
		return t.Iter()
	default:
		return nil, Raise(ClassTypeError, "'%s' object is not iterable", TypeName(v))
	}
}

// Contains implements the `in` operator.
func Contains(container, item Value) (bool, error) {
	switch t := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, Raise(ClassTypeError, "'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(t, s), nil
	case *Dict:
		_, present, err := t.Get(item)
		return present, err
	case *Set:
		return t.Has(item)
	default:
		items, err := Iterate(container)
		if err != nil {
			return false, err
		}
		for _, v := range items {
			eq, err := Equal(v, item)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	}
}

// SortValues sorts in place using Compare, stopping at the first error.
func SortValues(items []Value) error {
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := Compare(items[i], items[j])
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	return sortErr
}
