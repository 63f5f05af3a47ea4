package script

import (
	"encoding/json"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// moduleRegistry maps the fixed import allow-list to module factories. The
// allow-list is part of the external contract; anything absent here is a
// sandbox violation at import time.
func moduleRegistry() map[string]func(it *Interp) *Module {
	return map[string]func(it *Interp) *Module{
		"math":        moduleMath,
		"re":          moduleRe,
		"json":        moduleJSON,
		"collections": moduleCollections,
		"itertools":   moduleItertools,
		"functools":   moduleFunctools,
		"operator":    moduleOperator,
		"string":      moduleString,
		"textwrap":    moduleTextwrap,
		"datetime":    moduleDatetime,
		"decimal":     moduleDecimal,
		"fractions":   moduleFractions,
		"statistics":  moduleStatistics,
		"random":      moduleRandom,
		"copy":        moduleCopy,
		"pprint":      modulePprint,
		"dataclasses": moduleDataclasses,
		"typing":      moduleTyping,
		"enum":        moduleEnum,
		"abc":         moduleABC,
	}
}

func fn(name string, f func(it *Interp, args []Value, kwargs map[string]Value) (Value, error)) Value {
	return &Builtin{Name: name, Fn: f}
}

func float1(name string, f func(float64) float64) Value {
	return fn(name, func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "%s() takes exactly one argument (%d given)", name, len(args))
		}
		if _, _, ok := asNumber(args[0]); !ok {
			return nil, Raise(ClassTypeError, "must be real number, not %s", TypeName(args[0]))
		}
		return f(numAsFloat(args[0])), nil
	})
}

func moduleMath(_ *Interp) *Module {
	return &Module{Name: "math", Attrs: map[string]Value{
		"pi":  math.Pi,
		"e":   math.E,
		"tau": 2 * math.Pi,
		"inf": math.Inf(1),
		"nan": math.NaN(),
		"sqrt": fn("sqrt", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "sqrt() takes exactly one argument (%d given)", len(args))
			}
			if _, _, ok := asNumber(args[0]); !ok {
				return nil, Raise(ClassTypeError, "must be real number, not %s", TypeName(args[0]))
			}
			f := numAsFloat(args[0])
			if f < 0 {
				return nil, Raise(ClassValueError, "math domain error")
			}
			return math.Sqrt(f), nil
		}),
		"floor": fn("floor", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "floor() takes exactly one argument (%d given)", len(args))
			}
			if _, _, ok := asNumber(args[0]); !ok {
				return nil, Raise(ClassTypeError, "must be real number, not %s", TypeName(args[0]))
			}
			return int64(math.Floor(numAsFloat(args[0]))), nil
		}),
		"ceil": fn("ceil", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "ceil() takes exactly one argument (%d given)", len(args))
			}
			if _, _, ok := asNumber(args[0]); !ok {
				return nil, Raise(ClassTypeError, "must be real number, not %s", TypeName(args[0]))
			}
			return int64(math.Ceil(numAsFloat(args[0]))), nil
		}),
		"fabs":  float1("fabs", math.Abs),
		"exp":   float1("exp", math.Exp),
		"log":   float1("log", math.Log),
		"log2":  float1("log2", math.Log2),
		"log10": float1("log10", math.Log10),
		"sin":   float1("sin", math.Sin),
		"cos":   float1("cos", math.Cos),
		"tan":   float1("tan", math.Tan),
		"pow": fn("pow", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "pow expected 2 arguments, got %d", len(args))
			}
			return math.Pow(numAsFloat(args[0]), numAsFloat(args[1])), nil
		}),
		"gcd": fn("gcd", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "gcd expected 2 arguments, got %d", len(args))
			}
			a, aok := intOperand(args[0])
			b, bok := intOperand(args[1])
			if !aok || !bok {
				return nil, Raise(ClassTypeError, "gcd() requires integers")
			}
			if a < 0 {
				a = -a
			}
			if b < 0 {
				b = -b
			}
			for b != 0 {
				a, b = b, a%b
			}
			return a, nil
		}),
		"factorial": fn("factorial", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			n, ok := intOperand(argOrNone(args, 0))
			if !ok || n < 0 {
				return nil, Raise(ClassValueError, "factorial() only accepts non-negative integers")
			}
			out := int64(1)
			for i := int64(2); i <= n; i++ {
				out *= i
			}
			return out, nil
		}),
		"isnan": fn("isnan", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if _, _, ok := asNumber(argOrNone(args, 0)); !ok {
				return nil, Raise(ClassTypeError, "must be real number")
			}
			return math.IsNaN(numAsFloat(args[0])), nil
		}),
		"isinf": fn("isinf", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if _, _, ok := asNumber(argOrNone(args, 0)); !ok {
				return nil, Raise(ClassTypeError, "must be real number")
			}
			return math.IsInf(numAsFloat(args[0]), 0), nil
		}),
	}}
}

// rePattern is a compiled regular expression exposed to scripts.
type rePattern struct {
	re *regexp.Regexp
}

func (p *rePattern) TypeName() string { return "Pattern" }

func (p *rePattern) Attr(name string) (Value, error) {
	switch name {
	case "search":
		return method(name, p, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "search")
			if err != nil {
				return nil, err
			}
			return reSearch(recv.(*rePattern).re, s), nil
		}), nil
	case "match":
		return method(name, p, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "match")
			if err != nil {
				return nil, err
			}
			return reMatch(recv.(*rePattern).re, s), nil
		}), nil
	case "findall":
		return method(name, p, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "findall")
			if err != nil {
				return nil, err
			}
			return reFindall(recv.(*rePattern).re, s), nil
		}), nil
	case "sub":
		return method(name, p, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			repl, err := strArg(args, 0, "sub")
			if err != nil {
				return nil, err
			}
			s, err := strArg(args, 1, "sub")
			if err != nil {
				return nil, err
			}
			return recv.(*rePattern).re.ReplaceAllString(s, pyReplToGo(repl)), nil
		}), nil
	case "split":
		return method(name, p, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "split")
			if err != nil {
				return nil, err
			}
			parts := recv.(*rePattern).re.Split(s, -1)
			out := make([]Value, len(parts))
			for i, part := range parts {
				out[i] = part
			}
			return &List{Items: out}, nil
		}), nil
	case "pattern":
		return p.re.String(), nil
	}
	return nil, Raise(ClassAttributeError, "'Pattern' object has no attribute '%s'", name)
}

// reMatchObj is a single regex match.
type reMatchObj struct {
	groups []string
	start  int
	end    int
}

func (m *reMatchObj) TypeName() string { return "Match" }

func (m *reMatchObj) Truth() (bool, error) { return true, nil }

func (m *reMatchObj) Attr(name string) (Value, error) {
	switch name {
	case "group":
		return method(name, m, func(_ *Interp, recv Value, args []Value, _ map[string]Value) (Value, error) {
			match := recv.(*reMatchObj)
			idx := int64(0)
			if len(args) > 0 {
				var ok bool
				idx, ok = intOperand(args[0])
				if !ok {
					return nil, Raise(ClassTypeError, "group() requires an integer")
				}
			}
			if idx < 0 || int(idx) >= len(match.groups) {
				return nil, Raise(ClassIndexError, "no such group")
			}
			return match.groups[idx], nil
		}), nil
	case "groups":
		return method(name, m, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			match := recv.(*reMatchObj)
			out := make([]Value, 0, len(match.groups)-1)
			for _, g := range match.groups[1:] {
				out = append(out, g)
			}
			return &Tuple{Items: out}, nil
		}), nil
	case "start":
		return method(name, m, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return int64(recv.(*reMatchObj).start), nil
		}), nil
	case "end":
		return method(name, m, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			return int64(recv.(*reMatchObj).end), nil
		}), nil
	case "span":
		return method(name, m, func(_ *Interp, recv Value, _ []Value, _ map[string]Value) (Value, error) {
			match := recv.(*reMatchObj)
			return &Tuple{Items: []Value{int64(match.start), int64(match.end)}}, nil
		}), nil
	}
	return nil, Raise(ClassAttributeError, "'Match' object has no attribute '%s'", name)
}

func reSearch(re *regexp.Regexp, s string) Value {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil
	}
	return matchFromIndex(re, s, loc)
}

func reMatch(re *regexp.Regexp, s string) Value {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil || loc[0] != 0 {
		return nil
	}
	return matchFromIndex(re, s, loc)
}

func matchFromIndex(re *regexp.Regexp, s string, loc []int) *reMatchObj {
	groups := make([]string, len(loc)/2)
	for i := 0; i < len(loc)/2; i++ {
		if loc[2*i] >= 0 {
			groups[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	return &reMatchObj{groups: groups, start: loc[0], end: loc[1]}
}

func reFindall(re *regexp.Regexp, s string) *List {
	matches := re.FindAllStringSubmatch(s, -1)
	out := make([]Value, 0, len(matches))
	for _, m := range matches {
		switch {
		case len(m) == 1:
			out = append(out, m[0])
		case len(m) == 2:
			out = append(out, m[1])
		default:
			groups := make([]Value, len(m)-1)
			for i, g := range m[1:] {
				groups[i] = g
			}
			out = append(out, &Tuple{Items: groups})
		}
	}
	return &List{Items: out}
}

// compilePattern converts pattern + flags into a Go regexp, translating the
// flag constants the re module exposes.
func compilePattern(pattern string, flags int64) (*regexp.Regexp, error) {
	prefix := ""
	if flags&reFlagIgnoreCase != 0 {
		prefix += "i"
	}
	if flags&reFlagDotAll != 0 {
		prefix += "s"
	}
	if flags&reFlagMultiline != 0 {
		prefix += "m"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, Raise(ClassValueError, "invalid regular expression: %s", err)
	}
	return re, nil
}

const (
	reFlagIgnoreCase = 2
	reFlagMultiline  = 8
	reFlagDotAll     = 16
)

// pyReplToGo rewrites \1 group references into Go's $1 form.
func pyReplToGo(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '\\' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			b.WriteByte('$')
			b.WriteByte(repl[i+1])
			i++
			continue
		}
		if repl[i] == '$' {
			b.WriteString("$$")
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}

func flagsArg(args []Value, kwargs map[string]Value, pos int) int64 {
	if len(args) > pos {
		if n, ok := intOperand(args[pos]); ok {
			return n
		}
	}
	if kwargs != nil {
		if v, ok := kwargs["flags"]; ok {
			if n, ok := intOperand(v); ok {
				return n
			}
		}
	}
	return 0
}

func moduleRe(_ *Interp) *Module {
	return &Module{Name: "re", Attrs: map[string]Value{
		"IGNORECASE": int64(reFlagIgnoreCase),
		"I":          int64(reFlagIgnoreCase),
		"MULTILINE":  int64(reFlagMultiline),
		"M":          int64(reFlagMultiline),
		"DOTALL":     int64(reFlagDotAll),
		"S":          int64(reFlagDotAll),
		"compile": fn("compile", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			pattern, err := strArg(args, 0, "compile")
			if err != nil {
				return nil, err
			}
			re, err := compilePattern(pattern, flagsArg(args, kwargs, 1))
			if err != nil {
				return nil, err
			}
			return &rePattern{re: re}, nil
		}),
		"search": fn("search", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			pattern, err := strArg(args, 0, "search")
			if err != nil {
				return nil, err
			}
			s, err := strArg(args, 1, "search")
			if err != nil {
				return nil, err
			}
			re, err := compilePattern(pattern, flagsArg(args, kwargs, 2))
			if err != nil {
				return nil, err
			}
			return reSearch(re, s), nil
		}),
		"match": fn("match", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			pattern, err := strArg(args, 0, "match")
			if err != nil {
				return nil, err
			}
			s, err := strArg(args, 1, "match")
			if err != nil {
				return nil, err
			}
			re, err := compilePattern(pattern, flagsArg(args, kwargs, 2))
			if err != nil {
				return nil, err
			}
			return reMatch(re, s), nil
		}),
		"findall": fn("findall", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			pattern, err := strArg(args, 0, "findall")
			if err != nil {
				return nil, err
			}
			s, err := strArg(args, 1, "findall")
			if err != nil {
				return nil, err
			}
			re, err := compilePattern(pattern, flagsArg(args, kwargs, 2))
			if err != nil {
				return nil, err
			}
			return reFindall(re, s), nil
		}),
		"sub": fn("sub", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			pattern, err := strArg(args, 0, "sub")
			if err != nil {
				return nil, err
			}
			repl, err := strArg(args, 1, "sub")
			if err != nil {
				return nil, err
			}
			s, err := strArg(args, 2, "sub")
			if err != nil {
				return nil, err
			}
			re, err := compilePattern(pattern, flagsArg(args, kwargs, 3))
			if err != nil {
				return nil, err
			}
			return re.ReplaceAllString(s, pyReplToGo(repl)), nil
		}),
		"split": fn("split", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			pattern, err := strArg(args, 0, "split")
			if err != nil {
				return nil, err
			}
			s, err := strArg(args, 1, "split")
			if err != nil {
				return nil, err
			}
			re, err := compilePattern(pattern, flagsArg(args, kwargs, 2))
			if err != nil {
				return nil, err
			}
			parts := re.Split(s, -1)
			out := make([]Value, len(parts))
			for i, part := range parts {
				out[i] = part
			}
			return &List{Items: out}, nil
		}),
		"escape": fn("escape", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "escape")
			if err != nil {
				return nil, err
			}
			return regexp.QuoteMeta(s), nil
		}),
	}}
}

func moduleJSON(it *Interp) *Module {
	return &Module{Name: "json", Attrs: map[string]Value{
		"dumps": fn("dumps", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "dumps() takes exactly one argument (%d given)", len(args))
			}
			native, err := ToNative(args[0])
			if err != nil {
				return nil, err
			}
			var data []byte
			if kwargs != nil {
				if ind, ok := kwargs["indent"]; ok && ind != nil {
					n, _ := intOperand(ind)
					data, err = json.MarshalIndent(native, "", strings.Repeat(" ", int(n)))
					if err != nil {
						return nil, Raise(ClassValueError, "%s", err)
					}
					return string(data), nil
				}
			}
			data, err = json.Marshal(native)
			if err != nil {
				return nil, Raise(ClassValueError, "%s", err)
			}
			return string(data), nil
		}),
		"loads": fn("loads", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "loads")
			if err != nil {
				return nil, err
			}
			var native any
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			if err := dec.Decode(&native); err != nil {
				return nil, Raise(ClassValueError, "Expecting value: %s", err)
			}
			return FromNative(native)
		}),
	}}
}

func moduleCollections(it *Interp) *Module {
	return &Module{Name: "collections", Attrs: map[string]Value{
		"Counter": fn("Counter", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			d := NewDict()
			if len(args) > 0 {
				items, err := ip.guardIter(args[0])
				if err != nil {
					return nil, err
				}
				for _, item := range items {
					current, present, err := d.Get(item)
					if err != nil {
						return nil, err
					}
					n := int64(0)
					if present {
						n = current.(int64)
					}
					if err := d.Set(item, n+1); err != nil {
						return nil, err
					}
				}
			}
			return d, nil
		}),
		"OrderedDict": fn("OrderedDict", func(ip *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			return constructDict(ip, args, kwargs)
		}),
	}}
}

func moduleItertools(it *Interp) *Module {
	return &Module{Name: "itertools", Attrs: map[string]Value{
		"chain": fn("chain", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			var out []Value
			for _, arg := range args {
				items, err := ip.guardIter(arg)
				if err != nil {
					return nil, err
				}
				out = append(out, items...)
			}
			return &List{Items: out}, nil
		}),
		"repeat": fn("repeat", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "repeat() requires a value and a count")
			}
			n, ok := intOperand(args[1])
			if !ok {
				return nil, Raise(ClassTypeError, "count must be an integer")
			}
			out := make([]Value, 0, clampRepeat(n))
			for i := int64(0); i < n; i++ {
				out = append(out, args[0])
			}
			return &List{Items: out}, nil
		}),
		"accumulate": fn("accumulate", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "accumulate() missing required argument")
			}
			items, err := ip.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			var out []Value
			var acc Value
			for i, item := range items {
				if i == 0 {
					acc = item
				} else {
					acc, err = binaryOp("+", acc, item)
					if err != nil {
						return nil, err
					}
				}
				out = append(out, acc)
			}
			return &List{Items: out}, nil
		}),
	}}
}

func moduleFunctools(it *Interp) *Module {
	return &Module{Name: "functools", Attrs: map[string]Value{
		"reduce": fn("reduce", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) < 2 {
				return nil, Raise(ClassTypeError, "reduce expected at least 2 arguments, got %d", len(args))
			}
			items, err := ip.guardIter(args[1])
			if err != nil {
				return nil, err
			}
			var acc Value
			start := 0
			if len(args) > 2 {
				acc = args[2]
			} else {
				if len(items) == 0 {
					return nil, Raise(ClassTypeError, "reduce() of empty iterable with no initial value")
				}
				acc = items[0]
				start = 1
			}
			for _, item := range items[start:] {
				acc, err = ip.Call(args[0], []Value{acc, item}, nil)
				if err != nil {
					return nil, err
				}
			}
			return acc, nil
		}),
		"partial": fn("partial", func(ip *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			if len(args) < 1 {
				return nil, Raise(ClassTypeError, "partial expected at least 1 argument, got 0")
			}
			target := args[0]
			bound := append([]Value(nil), args[1:]...)
			boundKw := map[string]Value{}
			for k, v := range kwargs {
				boundKw[k] = v
			}
			return &Builtin{Name: "partial", Fn: func(ip2 *Interp, callArgs []Value, callKwargs map[string]Value) (Value, error) {
				merged := append(append([]Value(nil), bound...), callArgs...)
				kw := map[string]Value{}
				for k, v := range boundKw {
					kw[k] = v
				}
				for k, v := range callKwargs {
					kw[k] = v
				}
				return ip2.Call(target, merged, kw)
			}}, nil
		}),
	}}
}

func binFn(name, op string) Value {
	return fn(name, func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
		if len(args) != 2 {
			return nil, Raise(ClassTypeError, "%s expected 2 arguments, got %d", name, len(args))
		}
		return binaryOp(op, args[0], args[1])
	})
}

func moduleOperator(it *Interp) *Module {
	return &Module{Name: "operator", Attrs: map[string]Value{
		"add":      binFn("add", "+"),
		"sub":      binFn("sub", "-"),
		"mul":      binFn("mul", "*"),
		"truediv":  binFn("truediv", "/"),
		"floordiv": binFn("floordiv", "//"),
		"mod":      binFn("mod", "%"),
		"pow":      binFn("pow", "**"),
		"neg": fn("neg", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "neg expected 1 argument, got %d", len(args))
			}
			return unaryOp("-", args[0])
		}),
		"eq": fn("eq", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "eq expected 2 arguments, got %d", len(args))
			}
			return Equal(args[0], args[1])
		}),
		"lt": fn("lt", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "lt expected 2 arguments, got %d", len(args))
			}
			return compareOp("<", args[0], args[1])
		}),
		"gt": fn("gt", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "gt expected 2 arguments, got %d", len(args))
			}
			return compareOp(">", args[0], args[1])
		}),
		"itemgetter": fn("itemgetter", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "itemgetter expected 1 argument, got %d", len(args))
			}
			key := args[0]
			return &Builtin{Name: "itemgetter", Fn: func(ip2 *Interp, callArgs []Value, _ map[string]Value) (Value, error) {
				if len(callArgs) != 1 {
					return nil, Raise(ClassTypeError, "itemgetter call expected 1 argument, got %d", len(callArgs))
				}
				return ip2.guardItem(callArgs[0], key)
			}}, nil
		}),
	}}
}

func moduleString(_ *Interp) *Module {
	return &Module{Name: "string", Attrs: map[string]Value{
		"ascii_lowercase": "abcdefghijklmnopqrstuvwxyz",
		"ascii_uppercase": "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
		"ascii_letters":   "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		"digits":          "0123456789",
		"hexdigits":       "0123456789abcdefABCDEF",
		"octdigits":       "01234567",
		"punctuation":     "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~",
		"whitespace":      " \t\n\r\x0b\x0c",
		"capwords": fn("capwords", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "capwords")
			if err != nil {
				return nil, err
			}
			words := strings.Fields(s)
			for i, w := range words {
				runes := []rune(strings.ToLower(w))
				if len(runes) > 0 {
					runes[0] = unicode.ToUpper(runes[0])
				}
				words[i] = string(runes)
			}
			return strings.Join(words, " "), nil
		}),
	}}
}

func moduleTextwrap(_ *Interp) *Module {
	return &Module{Name: "textwrap", Attrs: map[string]Value{
		"dedent": fn("dedent", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "dedent")
			if err != nil {
				return nil, err
			}
			return dedent(s), nil
		}),
		"indent": fn("indent", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "indent")
			if err != nil {
				return nil, err
			}
			prefix, err := strArg(args, 1, "indent")
			if err != nil {
				return nil, err
			}
			lines := strings.Split(s, "\n")
			for i, line := range lines {
				if strings.TrimSpace(line) != "" {
					lines[i] = prefix + line
				}
			}
			return strings.Join(lines, "\n"), nil
		}),
		"wrap": fn("wrap", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "wrap")
			if err != nil {
				return nil, err
			}
			width := int64(70)
			if len(args) > 1 {
				if n, ok := intOperand(args[1]); ok {
					width = n
				}
			} else if kwargs != nil {
				if v, ok := kwargs["width"]; ok {
					if n, ok := intOperand(v); ok {
						width = n
					}
				}
			}
			wrapped := wrapText(s, int(width))
			out := make([]Value, len(wrapped))
			for i, line := range wrapped {
				out[i] = line
			}
			return &List{Items: out}, nil
		}),
		"fill": fn("fill", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "fill")
			if err != nil {
				return nil, err
			}
			width := int64(70)
			if len(args) > 1 {
				if n, ok := intOperand(args[1]); ok {
					width = n
				}
			}
			return strings.Join(wrapText(s, int(width)), "\n"), nil
		}),
		"shorten": fn("shorten", func(_ *Interp, args []Value, kwargs map[string]Value) (Value, error) {
			s, err := strArg(args, 0, "shorten")
			if err != nil {
				return nil, err
			}
			width := int64(70)
			if len(args) > 1 {
				if n, ok := intOperand(args[1]); ok {
					width = n
				}
			} else if kwargs != nil {
				if v, ok := kwargs["width"]; ok {
					if n, ok := intOperand(v); ok {
						width = n
					}
				}
			}
			collapsed := strings.Join(strings.Fields(s), " ")
			if int64(len(collapsed)) <= width {
				return collapsed, nil
			}
			placeholder := " [...]"
			budget := int(width) - len(placeholder)
			if budget < 0 {
				budget = 0
			}
			cut := collapsed[:budget]
			if i := strings.LastIndexByte(cut, ' '); i > 0 {
				cut = cut[:i]
			}
			return cut + placeholder, nil
		}),
	}}
}

func dedent(s string) string {
	lines := strings.Split(s, "\n")
	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}
	if margin <= 0 {
		return s
	}
	for i, line := range lines {
		if len(line) >= margin && strings.TrimSpace(line) != "" {
			lines[i] = line[margin:]
		} else if strings.TrimSpace(line) == "" {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

func wrapText(s string, width int) []string {
	if width <= 0 {
		width = 70
	}
	words := strings.Fields(s)
	var lines []string
	var current string
	for _, w := range words {
		switch {
		case current == "":
			current = w
		case len(current)+1+len(w) <= width:
			current += " " + w
		default:
			lines = append(lines, current)
			current = w
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// The remaining allow-list entries are inert name containers: importing them
// succeeds and the common names resolve, which is all the sandboxed scripts
// ever rely on.

func moduleDatetime(_ *Interp) *Module {
	return &Module{Name: "datetime", Attrs: map[string]Value{
		"MINYEAR": int64(1),
		"MAXYEAR": int64(9999),
	}}
}

func moduleDecimal(_ *Interp) *Module {
	return &Module{Name: "decimal", Attrs: map[string]Value{
		"Decimal": fn("Decimal", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			return constructFloat(ip, args, nil)
		}),
	}}
}

func moduleFractions(_ *Interp) *Module {
	return &Module{Name: "fractions", Attrs: map[string]Value{
		"Fraction": fn("Fraction", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			switch len(args) {
			case 1:
				return numAsFloat(args[0]), nil
			case 2:
				den := numAsFloat(args[1])
				if den == 0 {
					return nil, Raise(ClassZeroDivision, "Fraction(%s, 0)", Str(args[0]))
				}
				return numAsFloat(args[0]) / den, nil
			default:
				return nil, Raise(ClassTypeError, "Fraction expected 1 or 2 arguments, got %d", len(args))
			}
		}),
	}}
}

func moduleStatistics(it *Interp) *Module {
	numbers := func(ip *Interp, args []Value, name string) ([]float64, error) {
		if len(args) != 1 {
			return nil, Raise(ClassTypeError, "%s() takes exactly one argument (%d given)", name, len(args))
		}
		items, err := ip.guardIter(args[0])
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, Raise(ClassValueError, "%s requires at least one data point", name)
		}
		out := make([]float64, len(items))
		for i, item := range items {
			if _, _, ok := asNumber(item); !ok {
				return nil, Raise(ClassTypeError, "can't convert type '%s' to numerator/denominator", TypeName(item))
			}
			out[i] = numAsFloat(item)
		}
		return out, nil
	}
	return &Module{Name: "statistics", Attrs: map[string]Value{
		"mean": fn("mean", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			nums, err := numbers(ip, args, "mean")
			if err != nil {
				return nil, err
			}
			sum := 0.0
			for _, n := range nums {
				sum += n
			}
			return sum / float64(len(nums)), nil
		}),
		"median": fn("median", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			nums, err := numbers(ip, args, "median")
			if err != nil {
				return nil, err
			}
			sort.Float64s(nums)
			n := len(nums)
			if n%2 == 1 {
				return nums[n/2], nil
			}
			return (nums[n/2-1] + nums[n/2]) / 2, nil
		}),
		"stdev": fn("stdev", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			nums, err := numbers(ip, args, "stdev")
			if err != nil {
				return nil, err
			}
			if len(nums) < 2 {
				return nil, Raise(ClassValueError, "stdev requires at least two data points")
			}
			return math.Sqrt(variance(nums)), nil
		}),
		"variance": fn("variance", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			nums, err := numbers(ip, args, "variance")
			if err != nil {
				return nil, err
			}
			if len(nums) < 2 {
				return nil, Raise(ClassValueError, "variance requires at least two data points")
			}
			return variance(nums), nil
		}),
	}}
}

func variance(nums []float64) float64 {
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	acc := 0.0
	for _, n := range nums {
		d := n - mean
		acc += d * d
	}
	return acc / float64(len(nums)-1)
}

// moduleRandom is backed by math/rand: the allow-list documents it as
// non-cryptographic.
func moduleRandom(it *Interp) *Module {
	rng := rand.New(rand.NewSource(1))
	ensure := func() *rand.Rand { return rng }
	return &Module{Name: "random", Attrs: map[string]Value{
		"seed": fn("seed", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) > 0 {
				if n, ok := intOperand(args[0]); ok {
					rng = rand.New(rand.NewSource(n))
				}
			}
			return nil, nil
		}),
		"random": fn("random", func(_ *Interp, _ []Value, _ map[string]Value) (Value, error) {
			return ensure().Float64(), nil
		}),
		"randint": fn("randint", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "randint expected 2 arguments, got %d", len(args))
			}
			a, aok := intOperand(args[0])
			b, bok := intOperand(args[1])
			if !aok || !bok {
				return nil, Raise(ClassTypeError, "randint() requires integers")
			}
			if b < a {
				return nil, Raise(ClassValueError, "empty range for randint()")
			}
			return a + ensure().Int63n(b-a+1), nil
		}),
		"uniform": fn("uniform", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "uniform expected 2 arguments, got %d", len(args))
			}
			a, b := numAsFloat(args[0]), numAsFloat(args[1])
			return a + ensure().Float64()*(b-a), nil
		}),
		"choice": fn("choice", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "choice expected 1 argument, got %d", len(args))
			}
			items, err := ip.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, Raise(ClassIndexError, "Cannot choose from an empty sequence")
			}
			return items[ensure().Intn(len(items))], nil
		}),
		"shuffle": fn("shuffle", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "shuffle expected 1 argument, got %d", len(args))
			}
			lst, ok := args[0].(*List)
			if !ok {
				return nil, Raise(ClassTypeError, "shuffle() argument must be a list")
			}
			ensure().Shuffle(len(lst.Items), func(i, j int) {
				lst.Items[i], lst.Items[j] = lst.Items[j], lst.Items[i]
			})
			return nil, nil
		}),
		"sample": fn("sample", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 2 {
				return nil, Raise(ClassTypeError, "sample expected 2 arguments, got %d", len(args))
			}
			items, err := ip.guardIter(args[0])
			if err != nil {
				return nil, err
			}
			k, ok := intOperand(args[1])
			if !ok || k < 0 || int(k) > len(items) {
				return nil, Raise(ClassValueError, "Sample larger than population or is negative")
			}
			perm := ensure().Perm(len(items))
			out := make([]Value, k)
			for i := int64(0); i < k; i++ {
				out[i] = items[perm[i]]
			}
			return &List{Items: out}, nil
		}),
	}}
}

func moduleCopy(it *Interp) *Module {
	return &Module{Name: "copy", Attrs: map[string]Value{
		"copy": fn("copy", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "copy expected 1 argument, got %d", len(args))
			}
			return shallowCopy(args[0])
		}),
		"deepcopy": fn("deepcopy", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "deepcopy expected 1 argument, got %d", len(args))
			}
			return deepCopy(args[0])
		}),
	}}
}

func shallowCopy(v Value) (Value, error) {
	switch t := v.(type) {
	case *List:
		return &List{Items: append([]Value(nil), t.Items...)}, nil
	case *Dict:
		out := NewDict()
		for _, e := range t.entries {
			if err := out.Set(e.key, e.value); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *Set:
		out := NewSet()
		for _, item := range t.items {
			if err := out.Add(item); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return v, nil
	}
}

func deepCopy(v Value) (Value, error) {
	switch t := v.(type) {
	case *List:
		out := make([]Value, len(t.Items))
		for i, item := range t.Items {
			c, err := deepCopy(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return &List{Items: out}, nil
	case *Tuple:
		out := make([]Value, len(t.Items))
		for i, item := range t.Items {
			c, err := deepCopy(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return &Tuple{Items: out}, nil
	case *Dict:
		out := NewDict()
		for _, e := range t.entries {
			cv, err := deepCopy(e.value)
			if err != nil {
				return nil, err
			}
			if err := out.Set(e.key, cv); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *Set:
		return shallowCopy(t)
	default:
		return v, nil
	}
}

func modulePprint(it *Interp) *Module {
	return &Module{Name: "pprint", Attrs: map[string]Value{
		"pformat": fn("pformat", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "pformat expected 1 argument, got %d", len(args))
			}
			return Repr(args[0]), nil
		}),
		"pprint": fn("pprint", func(ip *Interp, args []Value, _ map[string]Value) (Value, error) {
			if len(args) != 1 {
				return nil, Raise(ClassTypeError, "pprint expected 1 argument, got %d", len(args))
			}
			ip.Collector.Write([]Value{Repr(args[0])}, " ", "\n")
			return nil, nil
		}),
	}}
}

func moduleDataclasses(_ *Interp) *Module {
	return &Module{Name: "dataclasses", Attrs: map[string]Value{
		"field": fn("field", func(_ *Interp, _ []Value, _ map[string]Value) (Value, error) {
			return nil, nil
		}),
	}}
}

func moduleTyping(_ *Interp) *Module {
	attrs := map[string]Value{}
	for _, name := range []string{"Any", "Optional", "Union", "List", "Dict", "Tuple", "Set", "Sequence", "Mapping", "Iterable", "Callable"} {
		attrs[name] = name
	}
	return &Module{Name: "typing", Attrs: attrs}
}

func moduleEnum(_ *Interp) *Module {
	return &Module{Name: "enum", Attrs: map[string]Value{
		"Enum": &Class{Name: "Enum"},
	}}
}

func moduleABC(_ *Interp) *Module {
	return &Module{Name: "abc", Attrs: map[string]Value{
		"ABC": &Class{Name: "ABC"},
		"abstractmethod": fn("abstractmethod", func(_ *Interp, args []Value, _ map[string]Value) (Value, error) {
			return argOrNone(args, 0), nil
		}),
	}}
}
