package script

import (
	"strings"
	"unicode"
)

// Classer lets a host object report its script-visible class so isinstance
// and except clauses can see it.
type Classer interface {
	ScriptClass() *Class
}

// Value-type class singletons. Constructors live in builtins.go.
var (
	ClassNoneType = &Class{Name: "NoneType"}
	ClassInt      = &Class{Name: "int"}
	ClassFloat    = &Class{Name: "float"}
	ClassBool     = &Class{Name: "bool", Base: ClassInt}
	ClassStr      = &Class{Name: "str"}
	ClassList     = &Class{Name: "list"}
	ClassTuple    = &Class{Name: "tuple"}
	ClassDict     = &Class{Name: "dict"}
	ClassSet      = &Class{Name: "set"}
	ClassRangeT   = &Class{Name: "range"}
	ClassSliceT   = &Class{Name: "slice"}
	ClassFunc     = &Class{Name: "function"}
	ClassModuleT  = &Class{Name: "module"}
	ClassTypeT    = &Class{Name: "type"}
)

// classOf maps a value to its class singleton.
func classOf(v Value) *Class {
	switch t := v.(type) {
	case nil:
		return ClassNoneType
	case bool:
		return ClassBool
	case int64:
		return ClassInt
	case float64:
		return ClassFloat
	case string:
		return ClassStr
	case *List:
		return ClassList
	case *Tuple:
		return ClassTuple
	case *Dict:
		return ClassDict
	case *Set:
		return ClassSet
	case *Range:
		return ClassRangeT
	case *Slice:
		return ClassSliceT
	case *Builtin, *Function:
		return ClassFunc
	case *Module:
		return ClassModuleT
	case *Class:
		return ClassTypeT
	case *ExcValue:
		return t.Class
	case Classer:
		return t.ScriptClass()
	default:
		return &Class{Name: TypeName(v)}
	}
}

// method wraps a bound method as a Builtin closing over the receiver.
func method(name string, recv Value, fn func(it *Interp, recv Value, args []Value, kwargs map[string]Value) (Value, error)) *Builtin {
	return &Builtin{Name: name, Fn: func(it *Interp, args []Value, kwargs map[string]Value) (Value, error) {
		return fn(it, recv, args, kwargs)
	}}
}

// attrLookup is the safe attribute lookup behind the guard. It dispatches to
// per-type method tables and the small set of admitted dunders; everything
// else is an AttributeError. There are no reachable type objects, function
// frames or code objects on any path.
func attrLookup(it *Interp, obj Value, name string) (Value, error) {
	// Admitted dunders shared by every value.
	switch name {
	case "__class__":
		return classOf(obj), nil
	case "__str__":
		return method(name, obj, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return Str(recv), nil
		}), nil
	case "__repr__":
		return method(name, obj, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return Repr(recv), nil
		}), nil
	case "__bool__":
		return method(name, obj, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			t, err := Truth(recv)
			if err != nil {
				return nil, err
			}
			return t, nil
		}), nil
	case "__len__":
		return method(name, obj, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			n, err := Len(recv)
			if err != nil {
				return nil, err
			}
			return n, nil
		}), nil
	case "__doc__":
		switch t := obj.(type) {
		case *Function:
			if t.Doc != "" {
				return t.Doc, nil
			}
			return nil, nil
		default:
			return nil, nil
		}
	case "__name__":
		switch t := obj.(type) {
		case *Function:
			return t.Name, nil
		case *Builtin:
			return t.Name, nil
		case *Class:
			return t.Name, nil
		case *Module:
			return t.Name, nil
		}
	}

	switch t := obj.(type) {
	case string:
		return strAttr(t, name)
	case *List:
		return listAttr(t, name)
	case *Dict:
		return dictAttr(t, name)
	case *Set:
		return setAttr(t, name)
	case *Tuple:
		return tupleAttr(t, name)
	case *Module:
		if v, ok := t.Attrs[name]; ok {
			return v, nil
		}
		return nil, Raise(ClassAttributeError, "module '%s' has no attribute '%s'", t.Name, name)
	case *ExcValue:
		if name == "args" {
			return &Tuple{Items: append([]Value(nil), t.Args...)}, nil
		}
	case Object:
		return t.Attr(name)
	}
	return nil, Raise(ClassAttributeError, "'%s' object has no attribute '%s'", TypeName(obj), name)
}

// String methods.

func strAttr(s string, name string) (Value, error) {
	switch name {
	case "upper":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			return strings.ToUpper(recv.(string)), nil
		}), nil
	case "lower":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			return strings.ToLower(recv.(string)), nil
		}), nil
	case "strip":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			cutset, err := optStrArg(args, 0, "")
			if err != nil {
				return nil, err
			}
			if cutset == "" {
				return strings.TrimSpace(recv.(string)), nil
			}
			return strings.Trim(recv.(string), cutset), nil
		}), nil
	case "lstrip":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			cutset, err := optStrArg(args, 0, "")
			if err != nil {
				return nil, err
			}
			if cutset == "" {
				return strings.TrimLeftFunc(recv.(string), unicode.IsSpace), nil
			}
			return strings.TrimLeft(recv.(string), cutset), nil
		}), nil
	case "rstrip":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			cutset, err := optStrArg(args, 0, "")
			if err != nil {
				return nil, err
			}
			if cutset == "" {
				return strings.TrimRightFunc(recv.(string), unicode.IsSpace), nil
			}
			return strings.TrimRight(recv.(string), cutset), nil
		}), nil
	case "split":
		return method(name, s, func(_ *Interp, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
			sep, err := optStrArg(args, 0, "")
			if err != nil {
				return nil, err
			}
			var parts []string
			if sep == "" {
				parts = strings.Fields(recv.(string))
			} else {
				parts = strings.Split(recv.(string), sep)
			}
			out := make([]Value, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return &List{Items: out}, nil
		}), nil
	case "splitlines":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			lines := splitLines(recv.(string))
			out := make([]Value, len(lines))
			for i, l := range lines {
				out[i] = l
			}
			return &List{Items: out}, nil
		}), nil
	case "join":
		return method(name, s, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "join() takes exactly one argument (%d given)", len(args))
			}
			items, err := it.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				str, ok := item.(string)
				if !ok {
					return nil, Raise(ClassTypeError, "sequence item %d: expected str instance, %s found", i, TypeName(item))
				}
				parts[i] = str
			}
			return strings.Join(parts, recv.(string)), nil
		}), nil
	case "replace":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			old, err := strArg(args, 0, "replace")
			if err != nil {
				return nil, err
			}
			new_, err := strArg(args, 1, "replace")
			if err != nil {
				return nil, err
			}
			return strings.ReplaceAll(recv.(string), old, new_), nil
		}), nil
	case "startswith":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			prefix, err := strArg(args, 0, "startswith")
			if err != nil {
				return nil, err
			}
			return strings.HasPrefix(recv.(string), prefix), nil
		}), nil
	case "endswith":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			suffix, err := strArg(args, 0, "endswith")
			if err != nil {
				return nil, err
			}
			return strings.HasSuffix(recv.(string), suffix), nil
		}), nil
	case "find":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			sub, err := strArg(args, 0, "find")
			if err != nil {
				return nil, err
			}
			return int64(strings.Index(recv.(string), sub)), nil
		}), nil
	case "index":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			sub, err := strArg(args, 0, "index")
			if err != nil {
				return nil, err
			}
			i := strings.Index(recv.(string), sub)
			if i < 0 {
				return nil, Raise(ClassValueError, "substring not found")
			}
			return int64(i), nil
		}), nil
	case "count":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			sub, err := strArg(args, 0, "count")
			if err != nil {
				return nil, err
			}
			return int64(strings.Count(recv.(string), sub)), nil
		}), nil
	case "title":
		return method(name, s, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return titleCase(recv.(string)), nil
		}), nil
	case "capitalize":
		return method(name, s, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			str := recv.(string)
			if str == "" {
				return str, nil
			}
			runes := []rune(strings.ToLower(str))
			runes[0] = unicode.ToUpper(runes[0])
			return string(runes), nil
		}), nil
	case "isdigit":
		return method(name, s, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			str := recv.(string)
			if str == "" {
				return false, nil
			}
			for _, r := range str {
				if !unicode.IsDigit(r) {
					return false, nil
				}
			}
			return true, nil
		}), nil
	case "isalpha":
		return method(name, s, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			str := recv.(string)
			if str == "" {
				return false, nil
			}
			for _, r := range str {
				if !unicode.IsLetter(r) {
					return false, nil
				}
			}
			return true, nil
		}), nil
	case "format":
		return method(name, s, func(_ *Interp, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
			return strFormat(recv.(string), args, kwargs)
		}), nil
	case "zfill":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			width, ok := intOperand(argOrNone(args, 0))
			if !ok {
				return nil, Raise(ClassTypeError, "zfill() requires an integer")
			}
			str := recv.(string)
			for int64(len(str)) < width {
				str = "0" + str
			}
			return str, nil
		}), nil
	}
	return nil, Raise(ClassAttributeError, "'str' object has no attribute '%s'", name)
}

// titleCase uppercases the first letter of every word.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

// splitLines splits on \n, \r\n and \r without a trailing empty element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// strFormat implements str.format with {}, {0} and {name} placeholders.
func strFormat(format string, args []Value, kwargs map[string]Value) (string, error) {
	var b strings.Builder
	auto := 0
	i := 0
	for i < len(format) {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(format) && format[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", Raise(ClassValueError, "Single '{' encountered in format string")
			}
			field := format[i+1 : i+end]
			// Format specs after ':' are not interpreted beyond str().
			if colon := strings.IndexByte(field, ':'); colon >= 0 {
				field = field[:colon]
			}
			var v Value
			switch {
			case field == "":
				if auto >= len(args) {
					return "", Raise(ClassIndexError, "Replacement index %d out of range for positional args tuple", auto)
				}
				v = args[auto]
				auto++
			case isAllDigits(field):
				idx := 0
				for _, r := range field {
					idx = idx*10 + int(r-'0')
				}
				if idx >= len(args) {
					return "", Raise(ClassIndexError, "Replacement index %d out of range for positional args tuple", idx)
				}
				v = args[idx]
			default:
				var ok bool
				v, ok = kwargs[field]
				if !ok {
					return "", Raise(ClassKeyError, "'%s'", field)
				}
			}
			b.WriteString(Str(v))
			i += end + 1
		case c == '}':
			return "", Raise(ClassValueError, "Single '}' encountered in format string")
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// List methods.

func listAttr(l *List, name string) (Value, error) {
	switch name {
	case "append":
		return method(name, l, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "append() takes exactly one argument (%d given)", len(args))
			}
			lst := recv.(*List)
			lst.Items = append(lst.Items, args[0])
			return nil, nil
		}), nil
	case "extend":
		return method(name, l, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "extend() takes exactly one argument (%d given)", len(args))
			}
			items, err := it.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			lst := recv.(*List)
			lst.Items = append(lst.Items, items...)
			return nil, nil
		}), nil
	case "insert":
		return method(name, l, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "insert() takes exactly two arguments (%d given)", len(args))
			}
			idx, ok := intOperand(args[0])
			if !ok {
				return nil, Raise(ClassTypeError, "insert() index must be an integer")
			}
			lst := recv.(*List)
			n := int64(len(lst.Items))
			if idx < 0 {
				idx += n
				if idx < 0 {
					idx = 0
				}
			}
			if idx > n {
				idx = n
			}
			lst.Items = append(lst.Items, nil)
			copy(lst.Items[idx+1:], lst.Items[idx:])
			lst.Items[idx] = args[1]
			return nil, nil
		}), nil
	case "pop":
		return method(name, l, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			lst := recv.(*List)
			n := int64(len(lst.Items))
			if n == 0 {
				return nil, Raise(ClassIndexError, "pop from empty list")
			}
			idx := n - 1
			if len(args) > 0 {
				var ok bool
				idx, ok = intOperand(args[0])
				if !ok {
					return nil, Raise(ClassTypeError, "pop() index must be an integer")
				}
				if idx < 0 {
					idx += n
				}
				if idx < 0 || idx >= n {
					return nil, Raise(ClassIndexError, "pop index out of range")
				}
			}
			v := lst.Items[idx]
			lst.Items = append(lst.Items[:idx], lst.Items[idx+1:]...)
			return v, nil
		}), nil
	case "remove":
		return method(name, l, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "remove() takes exactly one argument (%d given)", len(args))
			}
			lst := recv.(*List)
			for i, item := range lst.Items {
				eq, err := Equal(item, args[0])
				if err != nil {
					return nil, err
				}
				if eq {
					lst.Items = append(lst.Items[:i], lst.Items[i+1:]...)
					return nil, nil
				}
			}
			return nil, Raise(ClassValueError, "list.remove(x): x not in list")
		}), nil
	case "clear":
		return method(name, l, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			recv.(*List).Items = nil
			return nil, nil
		}), nil
	case "index":
		return method(name, l, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "index() takes at least one argument")
			}
			for i, item := range recv.(*List).Items {
				eq, err := Equal(item, args[0])
				if err != nil {
					return nil, err
				}
				if eq {
					return int64(i), nil
				}
			}
			return nil, Raise(ClassValueError, "%s is not in list", Repr(args[0]))
		}), nil
	case "count":
		return method(name, l, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "count() takes exactly one argument (%d given)", len(args))
			}
			n := int64(0)
			for _, item := range recv.(*List).Items {
				eq, err := Equal(item, args[0])
				if err != nil {
					return nil, err
				}
				if eq {
					n++
				}
			}
			return n, nil
		}), nil
	case "sort":
		return method(name, l, func(it *Interp, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
			lst := recv.(*List)
			if err := sortWithOptions(it, lst.Items, kwargs); err != nil {
				return nil, err
			}
			return nil, nil
		}), nil
	case "reverse":
		return method(name, l, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			items := recv.(*List).Items
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			return nil, nil
		}), nil
	case "copy":
		return method(name, l, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return &List{Items: append([]Value(nil), recv.(*List).Items...)}, nil
		}), nil
	}
	return nil, Raise(ClassAttributeError, "'list' object has no attribute '%s'", name)
}

// sortWithOptions applies key= and reverse= sorting shared by list.sort and
// sorted().
func sortWithOptions(it *Interp, items []Value, kwargs map[string]Value) error {
	var keyFn Value
	reverse := false
	if kwargs != nil {
		if k, ok := kwargs["key"]; ok && k != nil {
			keyFn = k
		}
		if r, ok := kwargs["reverse"]; ok {
			t, err := Truth(r)
			if err != nil {
				return err
			}
			reverse = t
		}
	}
	if keyFn != nil {
		keys := make([]Value, len(items))
		for i, item := range items {
			k, err := it.Call(keyFn, []Value{item}, nil)
			if err != nil {
				return err
			}
			keys[i] = k
		}
		pairs := make([]Value, len(items))
		for i := range items {
			pairs[i] = &Tuple{Items: []Value{keys[i], int64(i)}}
		}
		if err := SortValues(pairs); err != nil {
			return err
		}
		sorted := make([]Value, len(items))
		for i, p := range pairs {
			idx := p.(*Tuple).Items[1].(int64)
			sorted[i] = items[idx]
		}
		copy(items, sorted)
	} else {
		if err := SortValues(items); err != nil {
			return err
		}
	}
	if reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return nil
}

// Dict methods.

func dictAttr(d *Dict, name string) (Value, error) {
	switch name {
	case "get":
		return method(name, d, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "get expected at least 1 argument, got 0")
			}
			v, present, err := recv.(*Dict).Get(args[0])
			if err != nil {
				return nil, err
			}
			if present {
				return v, nil
			}
			return argOrNone(args, 1), nil
		}), nil
	case "keys":
		return method(name, d, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return &List{Items: recv.(*Dict).Keys()}, nil
		}), nil
	case "values":
		return method(name, d, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return &List{Items: recv.(*Dict).Values()}, nil
		}), nil
	case "items":
		return method(name, d, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return &List{Items: recv.(*Dict).Items()}, nil
		}), nil
	case "pop":
		return method(name, d, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "pop expected at least 1 argument, got 0")
			}
			dict := recv.(*Dict)
			v, present, err := dict.Get(args[0])
			if err != nil {
				return nil, err
			}
			if present {
				if _, err := dict.Delete(args[0]); err != nil {
					return nil, err
				}
				return v, nil
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return nil, Raise(ClassKeyError, "%s", Repr(args[0]))
		}), nil
	case "update":
		return method(name, d, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "update expected 1 argument, got %d", len(args))
			}
			other, ok := args[0].(*Dict)
			if !ok {
				return nil, Raise(ClassTypeError, "update() argument must be a dict, not %s", TypeName(args[0]))
			}
			dict := recv.(*Dict)
			for _, e := range other.entries {
				if err := dict.Set(e.key, e.value); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}), nil
	case "setdefault":
		return method(name, d, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "setdefault expected at least 1 argument, got 0")
			}
			dict := recv.(*Dict)
			v, present, err := dict.Get(args[0])
			if err != nil {
				return nil, err
			}
			if present {
				return v, nil
			}
			def := argOrNone(args, 1)
			if err := dict.Set(args[0], def); err != nil {
				return nil, err
			}
			return def, nil
		}), nil
	case "clear":
		return method(name, d, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			dict := recv.(*Dict)
			dict.entries = nil
			dict.index = make(map[string]int)
			return nil, nil
		}), nil
	case "copy":
		return method(name, d, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			dict := recv.(*Dict)
			out := NewDict()
			for _, e := range dict.entries {
				if err := out.Set(e.key, e.value); err != nil {
					return nil, err
				}
			}
			return out, nil
		}), nil
	}
	return nil, Raise(ClassAttributeError, "'dict' object has no attribute '%s'", name)
}

// Set methods.

func setAttr(s *Set, name string) (Value, error) {
	switch name {
	case "add":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "add() takes exactly one argument (%d given)", len(args))
			}
			return nil, recv.(*Set).Add(args[0])
		}), nil
	case "remove":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "remove() takes exactly one argument (%d given)", len(args))
			}
			present, err := recv.(*Set).Remove(args[0])
			if err != nil {
				return nil, err
			}
			if !present {
				return nil, Raise(ClassKeyError, "%s", Repr(args[0]))
			}
			return nil, nil
		}), nil
	case "discard":
		return method(name, s, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "discard() takes exactly one argument (%d given)", len(args))
			}
			_, err := recv.(*Set).Remove(args[0])
			return nil, err
		}), nil
	case "union":
		return method(name, s, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			out := NewSet()
			for _, item := range recv.(*Set).Values() {
				if err := out.Add(item); err != nil {
					return nil, err
				}
			}
			for _, arg := range args {
				items, err := it.guardIter(arg)
				if err != nil {
					return nil, err
				}
				for _, item := range items {
					if err := out.Add(item); err != nil {
						return nil, err
					}
				}
			}
			return out, nil
		}), nil
	case "intersection":
		return method(name, s, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			out := NewSet()
			for _, item := range recv.(*Set).Values() {
				inAll := true
				for _, arg := range args {
					has, err := Contains(arg, item)
					if err != nil {
						return nil, err
					}
					if !has {
						inAll = false
						break
					}
				}
				if inAll {
					if err := out.Add(item); err != nil {
						return nil, err
					}
				}
			}
			return out, nil
		}), nil
	case "difference":
		return method(name, s, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			out := NewSet()
			for _, item := range recv.(*Set).Values() {
				excluded := false
				for _, arg := range args {
					has, err := Contains(arg, item)
					if err != nil {
						return nil, err
					}
					if has {
						excluded = true
						break
					}
				}
				if !excluded {
					if err := out.Add(item); err != nil {
						return nil, err
					}
				}
			}
			return out, nil
		}), nil
	case "issubset":
		return method(name, s, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "issubset() takes exactly one argument (%d given)", len(args))
			}
			for _, item := range recv.(*Set).Values() {
				has, err := Contains(args[0], item)
				if err != nil {
					return nil, err
				}
				if !has {
					return false, nil
				}
			}
			return true, nil
		}), nil
	case "issuperset":
		return method(name, s, func(it *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "issuperset() takes exactly one argument (%d given)", len(args))
			}
			items, err := it.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				has, err := recv.(*Set).Has(item)
				if err != nil {
					return nil, err
				}
				if !has {
					return false, nil
				}
			}
			return true, nil
		}), nil
	case "clear":
		return method(name, s, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			set := recv.(*Set)
			set.items = nil
			set.index = make(map[string]int)
			return nil, nil
		}), nil
	}
	return nil, Raise(ClassAttributeError, "'set' object has no attribute '%s'", name)
}

// Tuple methods.

func tupleAttr(t *Tuple, name string) (Value, error) {
	switch name {
	case "count":
		return method(name, t, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "count() takes exactly one argument (%d given)", len(args))
			}
			n := int64(0)
			for _, item := range recv.(*Tuple).Items {
				eq, err := Equal(item, args[0])
				if err != nil {
					return nil, err
				}
				if eq {
					n++
				}
			}
			return n, nil
		}), nil
	case "index":
		return method(name, t, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "index() takes at least one argument")
			}
			for i, item := range recv.(*Tuple).Items {
				eq, err := Equal(item, args[0])
				if err != nil {
					return nil, err
				}
				if eq {
					return int64(i), nil
				}
			}
			return nil, Raise(ClassValueError, "tuple.index(x): x not in tuple")
		}), nil
	}
	return nil, Raise(ClassAttributeError, "'tuple' object has no attribute '%s'", name)
}

// Argument helpers shared by the method tables.

func argOrNone(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func strArg(args []Value, i int, fn string) (string, error) {
	if i >= len(args) {
		return "", Raise(ClassTypeError, "%s() missing required argument", fn)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", Raise(ClassTypeError, "%s() argument must be str, not %s", fn, TypeName(args[i]))
	}
	return s, nil
}

func optStrArg(args []Value, i int, def string) (string, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	s, ok := args[i].(string)
	if !ok {
		return "", Raise(ClassTypeError, "argument must be str or None, not %s", TypeName(args[i]))
	}
	return s, nil
}
