package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// instantiateException builds an exception instance from a class and args.
func instantiateException(cls *Class, args []Value) (*ExcValue, error) {
	msg := ""
	if len(args) == 1 {
		msg = Str(args[0])
	} else if len(args) > 1 {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = Repr(a)
		}
		msg = "(" + strings.Join(parts, ", ") + ")"
	}
	return &ExcValue{Class: cls, Args: args, Message: msg}, nil
}

func exceptionConstruct(cls *Class) func(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
	return func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		return instantiateException(cls, args)
	}
}

func init() {
	for _, cls := range []*Class{
		ClassBaseException, ClassException, ClassValueError, ClassTypeError,
		ClassKeyError, ClassIndexError, ClassAttributeError, ClassRuntimeError,
		ClassStopIteration, ClassZeroDivision, ClassNameError, ClassImportError,
		ClassSandboxError, ClassPendingOperation, ClassDeferredError,
	} {
		cls.Construct = exceptionConstruct(cls)
	}

	ClassInt.Construct = constructInt
	ClassFloat.Construct = constructFloat
	ClassStr.Construct = constructStr
	ClassBool.Construct = constructBool
	ClassList.Construct = constructList
	ClassTuple.Construct = constructTuple
	ClassDict.Construct = constructDict
	ClassSet.Construct = constructSet
	ClassSliceT.Construct = constructSlice
}

func constructInt(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
	if len(args) == 0 {
		return int64(0), nil
	}
	switch t := args[0].(type) {
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		return t, nil
	case float64:
		return int64(math.Trunc(t)), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, Raise(ClassValueError, "invalid literal for int() with base 10: %s", Repr(t))
		}
		return n, nil
	}
	return nil, Raise(ClassTypeError, "int() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func constructFloat(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
	if len(args) == 0 {
		return float64(0), nil
	}
	switch t := args[0].(type) {
	case bool:
		if t {
			return float64(1), nil
		}
		return float64(0), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, Raise(ClassValueError, "could not convert string to float: %s", Repr(t))
		}
		return f, nil
	}
	return nil, Raise(ClassTypeError, "float() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func constructStr(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
	if len(args) == 0 {
		return "", nil
	}
	return Str(args[0]), nil
}

func constructBool(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
	if len(args) == 0 {
		return false, nil
	}
	return Truth(args[0])
}

func constructList(it *Interp, args []Value, _ map[string]Value) (Value, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	items, err := it.guardIter(args[0])
	if err != nil {
		return nil, err
	}
	return &List{Items: items}, nil
}

func constructTuple(it *Interp, args []Value, _ map[string]Value) (Value, error) {
	if len(args) == 0 {
		return &Tuple{}, nil
	}
	items, err := it.guardIter(args[0])
	if err != nil {
		return nil, err
	}
	return &Tuple{Items: items}, nil
}

func constructDict(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
	d := NewDict()
	if len(args) > 0 {
		if src, ok := args[0].(*Dict); ok {
			for _, e := range src.entries {
				if err := d.Set(e.key, e.value); err != nil {
					return nil, err
				}
			}
		} else {
			pairs, err := it.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			for _, pair := range pairs {
				kv, err := it.guardIterUnpack(pair, 2)
				if err != nil {
					return nil, err
				}
				if err := d.Set(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	for k, v := range kwargs {
		if err := d.Set(k, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func constructSet(it *Interp, args []Value, _ map[string]Value) (Value, error) {
	s := NewSet()
	if len(args) > 0 {
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := s.Add(item); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func constructSlice(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
	switch len(args) {
	case 1:
		return &Slice{Stop: args[0]}, nil
	case 2:
		return &Slice{Start: args[0], Stop: args[1]}, nil
	case 3:
		return &Slice{Start: args[0], Stop: args[1], Step: args[2]}, nil
	default:
		return nil, Raise(ClassTypeError, "slice expected at most 3 arguments, got %d", len(args))
	}
}

// builtinTable assembles the curated builtin namespace. eval, exec, compile,
// open, __import__, input and breakpoint are deliberately absent.
func builtinTable() map[string]Value {
	b := map[string]Value{
		"dict":      ClassDict,
		"list":      ClassList,
		"set":       ClassSet,
		"frozenset": ClassSet,
		"tuple":     ClassTuple,
		"str":       ClassStr,
		"int":       ClassInt,
		"float":     ClassFloat,
		"bool":      ClassBool,
		"type":      ClassTypeT,
		"slice":     ClassSliceT,

		"Exception":          ClassException,
		"BaseException":      ClassBaseException,
		"ValueError":         ClassValueError,
		"TypeError":          ClassTypeError,
		"KeyError":           ClassKeyError,
		"IndexError":         ClassIndexError,
		"AttributeError":     ClassAttributeError,
		"RuntimeError":       ClassRuntimeError,
		"StopIteration":      ClassStopIteration,
		"ZeroDivisionError":  ClassZeroDivision,
		"NameError":          ClassNameError,
		"ImportError":        ClassImportError,
	}

	ClassTypeT.Construct = func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "type() takes 1 argument")
		}
		return classOf(args[0]), nil
	}

	add := func(name string, fn func(it *Interp, args []Value, kwargs map[string]Value) (Value, error)) {
		b[name] = &Builtin{Name: name, Fn: fn}
	}

	add("print", builtinPrint)
	add("len", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "len() takes exactly one argument (%d given)", len(args))
		}
		return Len(args[0])
	})
	add("range", builtinRange)
	add("enumerate", func(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
		if len(args) < 1 {
			return nil, Raise(ClassTypeError, "enumerate() missing required argument: 'iterable'")
		}
		start := int64(0)
		if len(args) > 1 {
			n, ok := intOperand(args[1])
			if !ok {
				return nil, Raise(ClassTypeError, "enumerate() start must be an integer")
			}
			start = n
		} else if kwargs != nil {
			if s, ok := kwargs["start"]; ok {
				n, ok := intOperand(s)
				if !ok {
					return nil, Raise(ClassTypeError, "enumerate() start must be an integer")
				}
				start = n
			}
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]Value, len(items))
		for i, item := range items {
			out[i] = &Tuple{Items: []Value{start + int64(i), item}}
		}
		return &List{Items: out}, nil
	})
	add("zip", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) == 0 {
			return &List{}, nil
		}
		seqs := make([][]Value, len(args))
		shortest := -1
		for i, a := range args {
			items, err := it.guardIter(a)
			if err != nil {
				return nil, err
			}
			seqs[i] = items
			if shortest < 0 || len(items) < shortest {
				shortest = len(items)
			}
		}
		out := make([]Value, shortest)
		for i := 0; i < shortest; i++ {
			row := make([]Value, len(seqs))
			for j := range seqs {
				row[j] = seqs[j][i]
			}
			out[i] = &Tuple{Items: row}
		}
		return &List{Items: out}, nil
	})
	add("map", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) < 2 {
			return nil, Raise(ClassTypeError, "map() must have at least two arguments.")
		}
		items, err := it.guardIter(args[1])
		if err != nil {
			return nil, err
		}
		out := make([]Value, len(items))
		for i, item := range items {
			v, err := it.Call(args[0], []Value{item}, nil)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return &List{Items: out}, nil
	})
	add("filter", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "filter expected 2 arguments, got %d", len(args))
		}
		items, err := it.guardIter(args[1])
		if err != nil {
			return nil, err
		}
		var out []Value
		for _, item := range items {
			var keep bool
			if args[0] == nil {
				keep, err = Truth(item)
			} else {
				var v Value
				v, err = it.Call(args[0], []Value{item}, nil)
				if err == nil {
					keep, err = Truth(v)
				}
			}
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, item)
			}
		}
		return &List{Items: out}, nil
	})
	add("sorted", func(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "sorted expected 1 argument, got %d", len(args))
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		if err := sortWithOptions(it, items, kwargs); err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	})
	add("reversed", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "reversed expected 1 argument, got %d", len(args))
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		out := make([]Value, len(items))
		for i, item := range items {
			out[len(items)-1-i] = item
		}
		return &List{Items: out}, nil
	})
	add("min", func(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
		return minMax(it, args, kwargs, true)
	})
	add("max", func(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
		return minMax(it, args, kwargs, false)
	})
	add("sum", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) < 1 {
			return nil, Raise(ClassTypeError, "sum() missing required argument: 'iterable'")
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		var acc Value = int64(0)
		if len(args) > 1 {
			acc = args[1]
		}
		for _, item := range items {
			acc, err = binaryOp("+", acc, item)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	})
	add("any", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "any() takes exactly one argument (%d given)", len(args))
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			t, err := Truth(item)
			if err != nil {
				return nil, err
			}
			if t {
				return true, nil
			}
		}
		return false, nil
	})
	add("all", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "all() takes exactly one argument (%d given)", len(args))
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			t, err := Truth(item)
			if err != nil {
				return nil, err
			}
			if !t {
				return false, nil
			}
		}
		return true, nil
	})
	add("abs", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "abs() takes exactly one argument (%d given)", len(args))
		}
		switch t := args[0].(type) {
		case int64:
			if t < 0 {
				return -t, nil
			}
			return t, nil
		case float64:
			return math.Abs(t), nil
		case bool:
			if t {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return nil, Raise(ClassTypeError, "bad operand type for abs(): '%s'", TypeName(args[0]))
	})
	add("round", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) < 1 {
			return nil, Raise(ClassTypeError, "round() missing required argument: 'number'")
		}
		_, _, ok := asNumber(args[0])
		if !ok {
			return nil, Raise(ClassTypeError, "type %s doesn't define __round__ method", TypeName(args[0]))
		}
		f := numAsFloat(args[0])
		if len(args) > 1 && args[1] != nil {
			nd, ok := intOperand(args[1])
			if !ok {
				return nil, Raise(ClassTypeError, "ndigits must be an integer")
			}
			scale := math.Pow(10, float64(nd))
			return math.Round(f*scale) / scale, nil
		}
		if _, isInt := args[0].(int64); isInt {
			return args[0], nil
		}
		return int64(math.Round(f)), nil
	})
	add("pow", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "pow expected 2 arguments, got %d", len(args))
		}
		return binaryOp("**", args[0], args[1])
	})
	add("divmod", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "divmod expected 2 arguments, got %d", len(args))
		}
		q, err := binaryOp("//", args[0], args[1])
		if err != nil {
			return nil, err
		}
		r, err := binaryOp("%", args[0], args[1])
		if err != nil {
			return nil, err
		}
		return &Tuple{Items: []Value{q, r}}, nil
	})
	add("isinstance", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "isinstance expected 2 arguments, got %d", len(args))
		}
		return matchClass(args[0], args[1])
	})
	add("issubclass", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "issubclass expected 2 arguments, got %d", len(args))
		}
		sub, ok := args[0].(*Class)
		if !ok {
			return nil, Raise(ClassTypeError, "issubclass() arg 1 must be a class")
		}
		sup, ok := args[1].(*Class)
		if !ok {
			return nil, Raise(ClassTypeError, "issubclass() arg 2 must be a class")
		}
		return sub.Isa(sup), nil
	})
	add("hasattr", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "hasattr expected 2 arguments, got %d", len(args))
		}
		name, ok := args[1].(string)
		if !ok {
			return nil, Raise(ClassTypeError, "hasattr(): attribute name must be string")
		}
		_, err := it.guardAttr(args[0], name)
		if err != nil {
			if r := AsRaised(err); r != nil && r.Class.Isa(ClassAttributeError) {
				return false, nil
			}
			return nil, err
		}
		return true, nil
	})
	add("getattr", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) < 2 {
			return nil, Raise(ClassTypeError, "getattr expected at least 2 arguments, got %d", len(args))
		}
		name, ok := args[1].(string)
		if !ok {
			return nil, Raise(ClassTypeError, "attribute name must be string, not '%s'", TypeName(args[1]))
		}
		v, err := it.guardAttr(args[0], name)
		if err != nil {
			if r := AsRaised(err); r != nil && r.Class.Isa(ClassAttributeError) && len(args) > 2 {
				return args[2], nil
			}
			return nil, err
		}
		return v, nil
	})
	add("callable", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "callable() takes exactly one argument (%d given)", len(args))
		}
		switch args[0].(type) {
		case *Builtin, *Function, *Class:
			return true, nil
		default:
			return false, nil
		}
	})
	add("hash", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "hash() takes exactly one argument (%d given)", len(args))
		}
		k, err := hashKey(args[0])
		if err != nil {
			return nil, err
		}
		var h int64
		for _, c := range k {
			h = h*131 + int64(c)
		}
		return h, nil
	})
	add("id", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "id() takes exactly one argument (%d given)", len(args))
		}
		return objectID(args[0]), nil
	})
	add("repr", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "repr() takes exactly one argument (%d given)", len(args))
		}
		return Repr(args[0]), nil
	})
	add("format", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) < 1 {
			return nil, Raise(ClassTypeError, "format() missing required argument: 'value'")
		}
		return Str(args[0]), nil
	})
	add("chr", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		n, ok := intOperand(argOrNone(args, 0))
		if !ok {
			return nil, Raise(ClassTypeError, "an integer is required")
		}
		if n < 0 || n > 0x10FFFF {
			return nil, Raise(ClassValueError, "chr() arg not in range(0x110000)")
		}
		return string(rune(n)), nil
	})
	add("ord", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		s, err := strArg(args, 0, "ord")
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if len(runes) != 1 {
			return nil, Raise(ClassTypeError, "ord() expected a character, but string of length %d found", len(runes))
		}
		return int64(runes[0]), nil
	})
	add("hex", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		n, ok := intOperand(argOrNone(args, 0))
		if !ok {
			return nil, Raise(ClassTypeError, "'%s' object cannot be interpreted as an integer", TypeName(argOrNone(args, 0)))
		}
		if n < 0 {
			return "-0x" + strconv.FormatInt(-n, 16), nil
		}
		return "0x" + strconv.FormatInt(n, 16), nil
	})
	add("bin", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		n, ok := intOperand(argOrNone(args, 0))
		if !ok {
			return nil, Raise(ClassTypeError, "'%s' object cannot be interpreted as an integer", TypeName(argOrNone(args, 0)))
		}
		if n < 0 {
			return "-0b" + strconv.FormatInt(-n, 2), nil
		}
		return "0b" + strconv.FormatInt(n, 2), nil
	})
	add("oct", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		n, ok := intOperand(argOrNone(args, 0))
		if !ok {
			return nil, Raise(ClassTypeError, "'%s' object cannot be interpreted as an integer", TypeName(argOrNone(args, 0)))
		}
		if n < 0 {
			return "-0o" + strconv.FormatInt(-n, 8), nil
		}
		return "0o" + strconv.FormatInt(n, 8), nil
	})
	add("iter", func(it *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "iter expected 1 argument, got %d", len(args))
		}
		items, err := it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		return &iterator{items: items}, nil
	})
	add("next", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) < 1 {
			return nil, Raise(ClassTypeError, "next expected at least 1 argument, got 0")
		}
		iter, ok := args[0].(*iterator)
		if !ok {
			return nil, Raise(ClassTypeError, "'%s' object is not an iterator", TypeName(args[0]))
		}
		if iter.pos >= len(iter.items) {
			if len(args) > 1 {
				return args[1], nil
			}
			return nil, &Raised{Class: ClassStopIteration}
		}
		v := iter.items[iter.pos]
		iter.pos++
		return v, nil
	})

	return b
}

// iterator is the value produced by iter(), consumed by next() and for
// loops.
type iterator struct {
	items []Value
	pos   int
}

func (i *iterator) TypeName() string { return "iterator" }

func (i *iterator) Attr(name string) (Value, error) {
	return nil, Raise(ClassAttributeError, "'iterator' object has no attribute '%s'", name)
}

func (i *iterator) Iter() ([]Value, error) {
	rest := i.items[i.pos:]
	i.pos = len(i.items)
	return rest, nil
}

// objectID derives a stable-enough identity for id().
func objectID(v Value) int64 {
	s := fmt.Sprintf("%p", v)
	if !strings.HasPrefix(s, "0x") {
		s = fmt.Sprintf("%v", v)
	}
	var h int64
	for _, c := range s {
		h = h*131 + int64(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

func builtinPrint(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
	sep := " "
	end := "\n"
	if kwargs != nil {
		if v, ok := kwargs["sep"]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, Raise(ClassTypeError, "sep must be None or a string, not %s", TypeName(v))
			}
			sep = s
		}
		if v, ok := kwargs["end"]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, Raise(ClassTypeError, "end must be None or a string, not %s", TypeName(v))
			}
			end = s
		}
	}
	it.Collector.Write(args, sep, end)
	return nil, nil
}

func builtinRange(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
	ints := make([]int64, len(args))
	for i, a := range args {
		n, ok := intOperand(a)
		if !ok {
			return nil, Raise(ClassTypeError, "'%s' object cannot be interpreted as an integer", TypeName(a))
		}
		ints[i] = n
	}
	switch len(ints) {
	case 1:
		return &Range{Start: 0, Stop: ints[0], Step: 1}, nil
	case 2:
		return &Range{Start: ints[0], Stop: ints[1], Step: 1}, nil
	case 3:
		if ints[2] == 0 {
			return nil, Raise(ClassValueError, "range() arg 3 must not be zero")
		}
		return &Range{Start: ints[0], Stop: ints[1], Step: ints[2]}, nil
	default:
		return nil, Raise(ClassTypeError, "range expected 1 to 3 arguments, got %d", len(ints))
	}
}

func minMax(it *Interp, args []Value, kwargs map[string]Value, isMin bool) (Value, error) {
	var items []Value
	var err error
	if len(args) == 1 {
		items, err = it.guardIter(args[0])
		if err != nil {
			return nil, err
		}
	} else {
		items = args
	}
	if len(items) == 0 {
		if kwargs != nil {
			if d, ok := kwargs["default"]; ok {
				return d, nil
			}
		}
		name := "max"
		if isMin {
			name = "min"
		}
		return nil, Raise(ClassValueError, "%s() arg is an empty sequence", name)
	}
	var keyFn Value
	if kwargs != nil {
		if k, ok := kwargs["key"]; ok && k != nil {
			keyFn = k
		}
	}
	keyOf := func(v Value) (Value, error) {
		if keyFn == nil {
			return v, nil
		}
		return it.Call(keyFn, []Value{v}, nil)
	}
	best := items[0]
	bestKey, err := keyOf(best)
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		k, err := keyOf(item)
		if err != nil {
			return nil, err
		}
		c, err := Compare(k, bestKey)
		if err != nil {
			return nil, err
		}
		if (isMin && c < 0) || (!isMin && c > 0) {
			best = item
			bestKey = k
		}
	}
	return best, nil
}

// matchClass implements isinstance, accepting a class or tuple of classes.
func matchClass(v Value, spec Value) (bool, error) {
	switch t := spec.(type) {
	case *Class:
		return classOf(v).Isa(t), nil
	case *Tuple:
		for _, item := range t.Items {
			ok, err := matchClass(v, item)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, Raise(ClassTypeError, "isinstance() arg 2 must be a type or tuple of types")
	}
}
