package script

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// maxCallDepth bounds script recursion so runaway functions surface as a
// script error instead of exhausting the Go stack.
const maxCallDepth = 200

// Interp evaluates compiled programs over a shared global/local namespace.
// Builtins live in their own layer so variable listings stay clean.
type Interp struct {
	Globals  map[string]Value
	Locals   map[string]Value
	Builtins map[string]Value

	// Collector receives print() output; Stderr receives script warnings.
	Collector *PrintCollector
	Stderr    io.Writer

	depth    int
	excStack []*Raised
}

// New creates an interpreter with empty namespaces and the curated builtin
// set installed.
func New() *Interp {
	it := &Interp{
		Globals:   make(map[string]Value),
		Locals:    make(map[string]Value),
		Collector: NewPrintCollector(nil),
		Stderr:    io.Discard,
	}
	it.Builtins = builtinTable()
	return it
}

// PrintCollector accumulates formatted print output and mirrors every write
// to an optional stream so captured output matches what the collector saw.
type PrintCollector struct {
	parts  []string
	mirror io.Writer
}

// NewPrintCollector creates a collector mirroring to w (nil for none).
func NewPrintCollector(w io.Writer) *PrintCollector {
	return &PrintCollector{mirror: w}
}

// Write formats one print call using sep/end and records it.
func (c *PrintCollector) Write(args []Value, sep, end string) {
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = Str(a)
	}
	out := strings.Join(strs, sep) + end
	c.parts = append(c.parts, out)
	if c.mirror != nil {
		io.WriteString(c.mirror, out)
	}
}

// Printed returns everything printed so far.
func (c *PrintCollector) Printed() string {
	return strings.Join(c.parts, "")
}

// frame is one function activation. A nil frame means module scope.
type frame struct {
	vars map[string]Value
}

// Run executes a compiled program in module scope.
func (it *Interp) Run(prog *Program) error {
	return it.execStmts(nil, prog.Stmts)
}

// Lookup resolves a name the way the evaluator would, without raising.
func (it *Interp) Lookup(name string) (Value, bool) {
	if v, ok := it.Locals[name]; ok {
		return v, true
	}
	if v, ok := it.Globals[name]; ok {
		return v, true
	}
	if v, ok := it.Builtins[name]; ok {
		return v, true
	}
	return nil, false
}

func (it *Interp) resolve(fr *frame, name string) (Value, error) {
	if fr != nil {
		if v, ok := fr.vars[name]; ok {
			return v, nil
		}
	}
	if v, ok := it.Lookup(name); ok {
		return v, nil
	}
	return nil, Raise(ClassNameError, "name '%s' is not defined", name)
}

func (it *Interp) bind(fr *frame, name string, v Value) {
	if fr != nil {
		fr.vars[name] = v
		return
	}
	it.Locals[name] = v
}

// Statement execution.

func (it *Interp) execStmts(fr *frame, stmts []Stmt) error {
	for _, s := range stmts {
		if err := it.execStmt(fr, s); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interp) execStmt(fr *frame, s Stmt) error {
	switch n := s.(type) {
	case *ExprStmt:
		v, err := it.evalExpr(fr, n.Expr)
		if err != nil {
			return err
		}
		if fr == nil {
			it.Locals["_"] = v
		}
		return nil
	case *AssignStmt:
		v, err := it.evalExpr(fr, n.Value)
		if err != nil {
			return err
		}
		return it.assign(fr, n.Target, v)
	case *AugAssignStmt:
		return it.execAugAssign(fr, n)
	case *IfStmt:
		cond, err := it.evalExpr(fr, n.Cond)
		if err != nil {
			return err
		}
		truth, err := Truth(cond)
		if err != nil {
			return err
		}
		if truth {
			return it.execStmts(fr, n.Body)
		}
		return it.execStmts(fr, n.Else)
	case *WhileStmt:
		for {
			cond, err := it.evalExpr(fr, n.Cond)
			if err != nil {
				return err
			}
			truth, err := Truth(cond)
			if err != nil {
				return err
			}
			if !truth {
				return nil
			}
			err = it.execStmts(fr, n.Body)
			if err != nil {
				if _, ok := err.(breakSignal); ok {
					return nil
				}
				if _, ok := err.(continueSignal); ok {
					continue
				}
				return err
			}
		}
	case *ForStmt:
		iter, err := it.evalExpr(fr, n.Iter)
		if err != nil {
			return err
		}
		items, err := it.guardIter(iter)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := it.assign(fr, n.Target, item); err != nil {
				return err
			}
			err := it.execStmts(fr, n.Body)
			if err != nil {
				if _, ok := err.(breakSignal); ok {
					return nil
				}
				if _, ok := err.(continueSignal); ok {
					continue
				}
				return err
			}
		}
		return nil
	case *BreakStmt:
		return breakSignal{}
	case *ContinueStmt:
		return continueSignal{}
	case *PassStmt:
		return nil
	case *ReturnStmt:
		if fr == nil {
			return Raise(ClassException, "'return' outside function")
		}
		var v Value
		if n.Value != nil {
			var err error
			v, err = it.evalExpr(fr, n.Value)
			if err != nil {
				return err
			}
		}
		return returnSignal{value: v}
	case *DefStmt:
		fn := &Function{Name: n.Name, Params: n.Params, Body: n.Body, Doc: n.Doc}
		it.bind(fr, n.Name, fn)
		return nil
	case *RaiseStmt:
		return it.execRaise(fr, n)
	case *TryStmt:
		return it.execTry(fr, n)
	case *ImportStmt:
		mod, err := it.guardImport(n.Name)
		if err != nil {
			return err
		}
		name := n.Alias
		if name == "" {
			name = n.Name
		}
		it.bind(fr, name, mod)
		return nil
	case *FromImportStmt:
		mod, err := it.guardImport(n.Module)
		if err != nil {
			return err
		}
		for i, attr := range n.Names {
			v, ok := mod.Attrs[attr]
			if !ok {
				return Raise(ClassImportError, "cannot import name '%s' from '%s'", attr, n.Module)
			}
			name := n.Aliases[i]
			if name == "" {
				name = attr
			}
			it.bind(fr, name, v)
		}
		return nil
	default:
		return Raise(ClassRuntimeError, "unsupported statement %T", s)
	}
}

func (it *Interp) execAugAssign(fr *frame, n *AugAssignStmt) error {
	var current Value
	var err error
	switch t := n.Target.(type) {
	case *NameTarget:
		current, err = it.resolve(fr, t.Name)
	case *AttrTarget:
		obj, oerr := it.evalExpr(fr, t.Obj)
		if oerr != nil {
			return oerr
		}
		current, err = it.guardAttr(obj, t.Name)
	case *IndexTarget:
		obj, oerr := it.evalExpr(fr, t.Obj)
		if oerr != nil {
			return oerr
		}
		key, kerr := it.evalExpr(fr, t.Index)
		if kerr != nil {
			return kerr
		}
		current, err = it.guardItem(obj, key)
	default:
		return Raise(ClassTypeError, "illegal target for augmented assignment")
	}
	if err != nil {
		return err
	}
	value, err := it.evalExpr(fr, n.Value)
	if err != nil {
		return err
	}
	result, err := binaryOp(n.Op, current, value)
	if err != nil {
		return err
	}
	return it.assign(fr, n.Target, result)
}

func (it *Interp) execRaise(fr *frame, n *RaiseStmt) error {
	if n.Exc == nil {
		if len(it.excStack) == 0 {
			return Raise(ClassRuntimeError, "No active exception to re-raise")
		}
		return it.excStack[len(it.excStack)-1]
	}
	v, err := it.evalExpr(fr, n.Exc)
	if err != nil {
		return err
	}
	switch exc := v.(type) {
	case *Class:
		inst, err := instantiateException(exc, nil)
		if err != nil {
			return err
		}
		return &Raised{Class: inst.Class, Message: inst.Message, Args: inst.Args}
	case *ExcValue:
		return &Raised{Class: exc.Class, Message: exc.Message, Args: exc.Args}
	default:
		return Raise(ClassTypeError, "exceptions must derive from BaseException")
	}
}

func (it *Interp) execTry(fr *frame, n *TryStmt) error {
	err := it.execStmts(fr, n.Body)

	if err != nil {
		raised := AsRaised(err)
		if raised == nil {
			// break/continue/return pass through, but finally still runs.
			if ferr := it.execStmts(fr, n.Finally); ferr != nil {
				return ferr
			}
			return err
		}
		for _, clause := range n.Excepts {
			match, merr := it.clauseMatches(fr, clause, raised)
			if merr != nil {
				err = merr
				break
			}
			if !match {
				continue
			}
			if clause.Name != "" {
				it.bind(fr, clause.Name, &ExcValue{Class: raised.Class, Args: raised.Args, Message: raised.Message})
			}
			it.excStack = append(it.excStack, raised)
			herr := it.execStmts(fr, clause.Body)
			it.excStack = it.excStack[:len(it.excStack)-1]
			err = herr
			break
		}
	}

	if ferr := it.execStmts(fr, n.Finally); ferr != nil {
		return ferr
	}
	return err
}

func (it *Interp) clauseMatches(fr *frame, clause ExceptClause, raised *Raised) (bool, error) {
	if len(clause.Classes) == 0 {
		return true, nil
	}
	for _, ce := range clause.Classes {
		cv, err := it.evalExpr(fr, ce)
		if err != nil {
			return false, err
		}
		cls, ok := cv.(*Class)
		if !ok {
			return false, Raise(ClassTypeError, "catching classes that do not inherit from BaseException is not allowed")
		}
		if raised.Class.Isa(cls) {
			return true, nil
		}
	}
	return false, nil
}

// assign writes a value through an assignment target, routing writes through
// the write guard.
func (it *Interp) assign(fr *frame, target assignTarget, v Value) error {
	switch t := target.(type) {
	case *NameTarget:
		it.bind(fr, t.Name, v)
		return nil
	case *chainTarget:
		for _, sub := range t.Targets {
			if err := it.assign(fr, sub, v); err != nil {
				return err
			}
		}
		return nil
	case *TupleTarget:
		items, err := it.guardIterUnpack(v, len(t.Targets))
		if err != nil {
			return err
		}
		for i, sub := range t.Targets {
			if err := it.assign(fr, sub, items[i]); err != nil {
				return err
			}
		}
		return nil
	case *AttrTarget:
		obj, err := it.evalExpr(fr, t.Obj)
		if err != nil {
			return err
		}
		return it.guardWriteAttr(obj, t.Name, v)
	case *IndexTarget:
		obj, err := it.evalExpr(fr, t.Obj)
		if err != nil {
			return err
		}
		key, err := it.evalExpr(fr, t.Index)
		if err != nil {
			return err
		}
		return it.guardWriteItem(obj, key, v)
	default:
		return Raise(ClassTypeError, "illegal assignment target")
	}
}

// Expression evaluation.

func (it *Interp) evalExpr(fr *frame, e Expr) (Value, error) {
	switch n := e.(type) {
	case *NameExpr:
		return it.resolve(fr, n.Name)
	case *NumberExpr:
		if n.IsFloat {
			return n.Float, nil
		}
		return n.Int, nil
	case *StringExpr:
		return n.Value, nil
	case *ConstExpr:
		return n.Value, nil
	case *ListExpr:
		items, err := it.evalExprs(fr, n.Items)
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	case *TupleExpr:
		items, err := it.evalExprs(fr, n.Items)
		if err != nil {
			return nil, err
		}
		return &Tuple{Items: items}, nil
	case *SetExpr:
		items, err := it.evalExprs(fr, n.Items)
		if err != nil {
			return nil, err
		}
		set := NewSet()
		for _, item := range items {
			if err := set.Add(item); err != nil {
				return nil, err
			}
		}
		return set, nil
	case *DictExpr:
		d := NewDict()
		for i := range n.Keys {
			k, err := it.evalExpr(fr, n.Keys[i])
			if err != nil {
				return nil, err
			}
			v, err := it.evalExpr(fr, n.Values[i])
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}
		return d, nil
	case *UnaryExpr:
		operand, err := it.evalExpr(fr, n.Operand)
		if err != nil {
			return nil, err
		}
		return unaryOp(n.Op, operand)
	case *BinaryExpr:
		left, err := it.evalExpr(fr, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := it.evalExpr(fr, n.Right)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, left, right)
	case *BoolOpExpr:
		var last Value
		for i, ve := range n.Values {
			v, err := it.evalExpr(fr, ve)
			if err != nil {
				return nil, err
			}
			last = v
			if i == len(n.Values)-1 {
				break
			}
			truth, err := Truth(v)
			if err != nil {
				return nil, err
			}
			if n.Op == "and" && !truth {
				return v, nil
			}
			if n.Op == "or" && truth {
				return v, nil
			}
		}
		return last, nil
	case *CompareExpr:
		left, err := it.evalExpr(fr, n.Left)
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := it.evalExpr(fr, n.Rest[i])
			if err != nil {
				return nil, err
			}
			ok, err := compareOp(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil
	case *CondExpr:
		cond, err := it.evalExpr(fr, n.Cond)
		if err != nil {
			return nil, err
		}
		truth, err := Truth(cond)
		if err != nil {
			return nil, err
		}
		if truth {
			return it.evalExpr(fr, n.Then)
		}
		return it.evalExpr(fr, n.Else)
	case *CallExpr:
		fn, err := it.evalExpr(fr, n.Fn)
		if err != nil {
			return nil, err
		}
		args, err := it.evalExprs(fr, n.Args)
		if err != nil {
			return nil, err
		}
		var kwargs map[string]Value
		if len(n.KwNames) > 0 {
			kwargs = make(map[string]Value, len(n.KwNames))
			for i, name := range n.KwNames {
				v, err := it.evalExpr(fr, n.KwValues[i])
				if err != nil {
					return nil, err
				}
				kwargs[name] = v
			}
		}
		return it.Call(fn, args, kwargs)
	case *AttrExpr:
		obj, err := it.evalExpr(fr, n.Obj)
		if err != nil {
			return nil, err
		}
		return it.guardAttr(obj, n.Name)
	case *IndexExpr:
		obj, err := it.evalExpr(fr, n.Obj)
		if err != nil {
			return nil, err
		}
		key, err := it.evalExpr(fr, n.Index)
		if err != nil {
			return nil, err
		}
		return it.guardItem(obj, key)
	case *SliceExpr:
		obj, err := it.evalExpr(fr, n.Obj)
		if err != nil {
			return nil, err
		}
		var start, stop, step Value
		if n.Start != nil {
			if start, err = it.evalExpr(fr, n.Start); err != nil {
				return nil, err
			}
		}
		if n.Stop != nil {
			if stop, err = it.evalExpr(fr, n.Stop); err != nil {
				return nil, err
			}
		}
		if n.Step != nil {
			if step, err = it.evalExpr(fr, n.Step); err != nil {
				return nil, err
			}
		}
		return sliceValue(obj, &Slice{Start: start, Stop: stop, Step: step})
	case *LambdaExpr:
		return &Function{Name: "<lambda>", Params: n.Params, Body: []Stmt{&ReturnStmt{Value: n.Body}}, IsLambda: true}, nil
	case *CompExpr:
		iter, err := it.evalExpr(fr, n.Iter)
		if err != nil {
			return nil, err
		}
		items, err := it.guardIter(iter)
		if err != nil {
			return nil, err
		}
		// Comprehension targets bind in the enclosing scope, which matches
		// how the rest of the evaluator scopes names.
		var out []Value
		for _, item := range items {
			if err := it.assign(fr, n.Target, item); err != nil {
				return nil, err
			}
			if n.Cond != nil {
				cond, err := it.evalExpr(fr, n.Cond)
				if err != nil {
					return nil, err
				}
				truth, err := Truth(cond)
				if err != nil {
					return nil, err
				}
				if !truth {
					continue
				}
			}
			v, err := it.evalExpr(fr, n.Elt)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return &List{Items: out}, nil
	default:
		return nil, Raise(ClassRuntimeError, "unsupported expression %T", e)
	}
}

func (it *Interp) evalExprs(fr *frame, exprs []Expr) ([]Value, error) {
	values := make([]Value, len(exprs))
	for i, e := range exprs {
		v, err := it.evalExpr(fr, e)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Call invokes any callable value with positional and keyword arguments.
func (it *Interp) Call(fn Value, args []Value, kwargs map[string]Value) (Value, error) {
	switch f := fn.(type) {
	case *Builtin:
		return f.Fn(it, args, kwargs)
	case *Function:
		return it.callFunction(f, args, kwargs)
	case *Class:
		if f.Construct == nil {
			return nil, Raise(ClassTypeError, "cannot instantiate '%s'", f.Name)
		}
		return f.Construct(it, args, kwargs)
	default:
		return nil, Raise(ClassTypeError, "'%s' object is not callable", TypeName(fn))
	}
}

func (it *Interp) callFunction(f *Function, args []Value, kwargs map[string]Value) (Value, error) {
	if it.depth >= maxCallDepth {
		return nil, Raise(ClassRuntimeError, "maximum recursion depth exceeded")
	}
	fr := &frame{vars: make(map[string]Value, len(f.Params))}

	if len(args) > len(f.Params) {
		return nil, Raise(ClassTypeError, "%s() takes %d positional arguments but %d were given", f.Name, len(f.Params), len(args))
	}
	for i, p := range f.Params {
		if i < len(args) {
			fr.vars[p.Name] = args[i]
			continue
		}
		if kwargs != nil {
			if v, ok := kwargs[p.Name]; ok {
				fr.vars[p.Name] = v
				delete(kwargs, p.Name)
				continue
			}
		}
		if p.Default != nil {
			d, err := it.evalExpr(nil, p.Default)
			if err != nil {
				return nil, err
			}
			fr.vars[p.Name] = d
			continue
		}
		return nil, Raise(ClassTypeError, "%s() missing required argument: '%s'", f.Name, p.Name)
	}
	for name := range kwargs {
		if _, ok := fr.vars[name]; !ok {
			return nil, Raise(ClassTypeError, "%s() got an unexpected keyword argument '%s'", f.Name, name)
		}
		// Duplicate of a positional binding.
		for i, p := range f.Params {
			if p.Name == name && i < len(args) {
				return nil, Raise(ClassTypeError, "%s() got multiple values for argument '%s'", f.Name, name)
			}
		}
	}

	it.depth++
	err := it.execStmts(fr, f.Body)
	it.depth--
	if err != nil {
		if ret, ok := err.(returnSignal); ok {
			return ret.value, nil
		}
		return nil, err
	}
	return nil, nil
}

// Operators.

func unaryOp(op string, v Value) (Value, error) {
	switch op {
	case "not":
		truth, err := Truth(v)
		if err != nil {
			return nil, err
		}
		return !truth, nil
	case "-":
		switch t := v.(type) {
		case int64:
			return -t, nil
		case float64:
			return -t, nil
		case bool:
			if t {
				return int64(-1), nil
			}
			return int64(0), nil
		}
		return nil, Raise(ClassTypeError, "bad operand type for unary -: '%s'", TypeName(v))
	case "+":
		switch v.(type) {
		case int64, float64, bool:
			return v, nil
		}
		return nil, Raise(ClassTypeError, "bad operand type for unary +: '%s'", TypeName(v))
	}
	return nil, Raise(ClassRuntimeError, "unknown unary operator %s", op)
}

func binaryOp(op string, a, b Value) (Value, error) {
	switch op {
	case "+":
		if x, ok := a.(string); ok {
			if y, ok := b.(string); ok {
				return x + y, nil
			}
			return nil, Raise(ClassTypeError, "can only concatenate str (not \"%s\") to str", TypeName(b))
		}
		if x, ok := a.(*List); ok {
			if y, ok := b.(*List); ok {
				return &List{Items: append(append([]Value{}, x.Items...), y.Items...)}, nil
			}
			return nil, Raise(ClassTypeError, "can only concatenate list (not \"%s\") to list", TypeName(b))
		}
		if x, ok := a.(*Tuple); ok {
			if y, ok := b.(*Tuple); ok {
				return &Tuple{Items: append(append([]Value{}, x.Items...), y.Items...)}, nil
			}
			return nil, Raise(ClassTypeError, "can only concatenate tuple (not \"%s\") to tuple", TypeName(b))
		}
		return numericOp(op, a, b)
	case "*":
		if n, ok := intOperand(b); ok {
			if x, ok := a.(string); ok {
				return strings.Repeat(x, clampRepeat(n)), nil
			}
			if x, ok := a.(*List); ok {
				return repeatList(x.Items, n), nil
			}
		}
		if n, ok := intOperand(a); ok {
			if y, ok := b.(string); ok {
				return strings.Repeat(y, clampRepeat(n)), nil
			}
			if y, ok := b.(*List); ok {
				return repeatList(y.Items, n), nil
			}
		}
		return numericOp(op, a, b)
	case "%":
		if x, ok := a.(string); ok {
			return formatPercent(x, b)
		}
		return numericOp(op, a, b)
	default:
		return numericOp(op, a, b)
	}
}

func intOperand(v Value) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func clampRepeat(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

func repeatList(items []Value, n int64) *List {
	out := make([]Value, 0, len(items)*clampRepeat(n))
	for i := int64(0); i < n; i++ {
		out = append(out, items...)
	}
	return &List{Items: out}
}

func numericOp(op string, a, b Value) (Value, error) {
	_, aFloat, aok := asNumber(a)
	_, bFloat, bok := asNumber(b)
	if !aok || !bok {
		return nil, Raise(ClassTypeError, "unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(a), TypeName(b))
	}

	if aFloat || bFloat || op == "/" {
		x, y := numAsFloat(a), numAsFloat(b)
		switch op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		case "/":
			if y == 0 {
				return nil, Raise(ClassZeroDivision, "division by zero")
			}
			return x / y, nil
		case "//":
			if y == 0 {
				return nil, Raise(ClassZeroDivision, "float floor division by zero")
			}
			return math.Floor(x / y), nil
		case "%":
			if y == 0 {
				return nil, Raise(ClassZeroDivision, "float modulo")
			}
			m := math.Mod(x, y)
			if m != 0 && (m < 0) != (y < 0) {
				m += y
			}
			return m, nil
		case "**":
			return math.Pow(x, y), nil
		}
	}

	x, y := numAsInt(a), numAsInt(b)
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "//":
		if y == 0 {
			return nil, Raise(ClassZeroDivision, "integer division or modulo by zero")
		}
		q := x / y
		if (x%y != 0) && ((x < 0) != (y < 0)) {
			q--
		}
		return q, nil
	case "%":
		if y == 0 {
			return nil, Raise(ClassZeroDivision, "integer division or modulo by zero")
		}
		m := x % y
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	case "**":
		if y < 0 {
			return math.Pow(float64(x), float64(y)), nil
		}
		result := int64(1)
		base := x
		for e := y; e > 0; e >>= 1 {
			if e&1 == 1 {
				result *= base
			}
			base *= base
		}
		return result, nil
	}
	return nil, Raise(ClassRuntimeError, "unknown operator %s", op)
}

func compareOp(op string, a, b Value) (bool, error) {
	switch op {
	case "==":
		return Equal(a, b)
	case "!=":
		eq, err := Equal(a, b)
		return !eq, err
	case "<", "<=", ">", ">=":
		c, err := Compare(a, b)
		if err != nil {
			return false, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "in":
		return Contains(b, a)
	case "not in":
		ok, err := Contains(b, a)
		return !ok, err
	case "is":
		return valueIs(a, b), nil
	case "is not":
		return !valueIs(a, b), nil
	}
	return false, Raise(ClassRuntimeError, "unknown comparison %s", op)
}

// valueIs approximates identity: reference equality for containers, value
// equality for interned scalars.
func valueIs(a, b Value) bool {
	switch a.(type) {
	case nil, bool, int64, string:
		eq, err := Equal(a, b)
		if err != nil {
			return false
		}
		if TypeName(a) != TypeName(b) {
			return false
		}
		return eq
	default:
		return a == b
	}
}

// formatPercent implements the %-formatting operator for strings.
func formatPercent(format string, arg Value) (string, error) {
	var args []Value
	if t, ok := arg.(*Tuple); ok {
		args = t.Items
	} else {
		args = []Value{arg}
	}
	var b strings.Builder
	argIdx := 0
	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			b.WriteByte('%')
			i += 2
			continue
		}
		// Scan the conversion: flags, width, precision, verb.
		j := i + 1
		for j < len(format) && strings.ContainsRune("-+ 0#.0123456789", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			return "", Raise(ClassValueError, "incomplete format")
		}
		verb := format[j]
		if argIdx >= len(args) {
			return "", Raise(ClassTypeError, "not enough arguments for format string")
		}
		spec := format[i : j+1]
		v := args[argIdx]
		argIdx++
		switch verb {
		case 's':
			b.WriteString(fmt.Sprintf(strings.Replace(spec, string(verb), "s", 1), Str(v)))
		case 'r':
			b.WriteString(fmt.Sprintf(strings.Replace(spec, string(verb), "s", 1), Repr(v)))
		case 'd', 'i':
			n, ok := intOperand(v)
			if !ok {
				if f, isF := v.(float64); isF {
					n = int64(f)
				} else {
					return "", Raise(ClassTypeError, "%%d format: a number is required, not %s", TypeName(v))
				}
			}
			b.WriteString(fmt.Sprintf(strings.Replace(spec, string(verb), "d", 1), n))
		case 'f', 'e', 'g':
			if _, _, ok := asNumber(v); !ok {
				return "", Raise(ClassTypeError, "must be real number, not %s", TypeName(v))
			}
			b.WriteString(fmt.Sprintf(spec, numAsFloat(v)))
		case 'x', 'X', 'o':
			n, ok := intOperand(v)
			if !ok {
				return "", Raise(ClassTypeError, "%%%c format: an integer is required, not %s", verb, TypeName(v))
			}
			b.WriteString(fmt.Sprintf(spec, n))
		default:
			return "", Raise(ClassValueError, "unsupported format character '%c'", verb)
		}
		i = j + 1
	}
	if argIdx < len(args) {
		return "", Raise(ClassTypeError, "not all arguments converted during string formatting")
	}
	return b.String(), nil
}
