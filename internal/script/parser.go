package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Compile lexes and parses source into a Program. All rejections surface as
// *CompileError; disallowed constructs are rejected here so nothing outside
// the supported surface ever reaches the evaluator.
func Compile(src string) (*Program, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	prog, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	return prog, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) cur() token  { return p.tokens[p.pos] }
func (p *parser) next() token { t := p.tokens[p.pos]; p.pos++; return t }

func (p *parser) at(kind tokenKind, text string) bool {
	t := p.cur()
	return t.kind == kind && (text == "" || t.text == text)
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.at(kind, text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) (token, error) {
	if p.at(kind, text) {
		return p.next(), nil
	}
	t := p.cur()
	want := text
	if want == "" {
		switch kind {
		case tokName:
			want = "identifier"
		case tokNewline:
			want = "newline"
		case tokIndent:
			want = "indented block"
		case tokDedent:
			want = "dedent"
		default:
			want = "token"
		}
	}
	got := t.text
	if got == "" {
		switch t.kind {
		case tokEOF:
			got = "end of input"
		case tokNewline:
			got = "newline"
		case tokIndent:
			got = "indent"
		case tokDedent:
			got = "dedent"
		}
	}
	return t, p.errorf(t, "expected %s, got %q", want, got)
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &CompileError{Message: fmt.Sprintf(format, args...), Line: t.line}
}

func (p *parser) parseProgram() (*Program, error) {
	var stmts []Stmt
	for !p.at(tokEOF, "") {
		if p.accept(tokNewline, "") {
			continue
		}
		ss, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, ss...)
	}
	return &Program{Stmts: stmts}, nil
}

// parseStatement handles one logical line or compound statement. Simple
// statement lines may carry several statements joined by semicolons.
func (p *parser) parseStatement() ([]Stmt, error) {
	t := p.cur()
	if t.kind == tokKeyword {
		if reservedKeywords[t.text] {
			return nil, p.errorf(t, "'%s' is not allowed in sandboxed code", t.text)
		}
		switch t.text {
		case "if":
			s, err := p.parseIf()
			return wrapStmt(s, err)
		case "while":
			s, err := p.parseWhile()
			return wrapStmt(s, err)
		case "for":
			s, err := p.parseFor()
			return wrapStmt(s, err)
		case "def":
			s, err := p.parseDef()
			return wrapStmt(s, err)
		case "try":
			s, err := p.parseTry()
			return wrapStmt(s, err)
		}
	}
	if t.kind == tokOp && t.text == "@" {
		return nil, p.errorf(t, "decorators are not allowed in sandboxed code")
	}
	return p.parseSimpleLine()
}

func wrapStmt(s Stmt, err error) ([]Stmt, error) {
	if err != nil {
		return nil, err
	}
	return []Stmt{s}, nil
}

func (p *parser) parseSimpleLine() ([]Stmt, error) {
	var stmts []Stmt
	for {
		s, err := p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if !p.accept(tokOp, ";") {
			break
		}
		if p.at(tokNewline, "") || p.at(tokEOF, "") {
			break
		}
	}
	if !p.accept(tokNewline, "") && !p.at(tokEOF, "") && !p.at(tokDedent, "") {
		t := p.cur()
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return stmts, nil
}

func (p *parser) parseSimpleStmt() (Stmt, error) {
	t := p.cur()
	if t.kind == tokKeyword {
		switch t.text {
		case "pass":
			p.next()
			return &PassStmt{}, nil
		case "break":
			p.next()
			return &BreakStmt{}, nil
		case "continue":
			p.next()
			return &ContinueStmt{}, nil
		case "return":
			p.next()
			if p.at(tokNewline, "") || p.at(tokEOF, "") || p.at(tokOp, ";") {
				return &ReturnStmt{}, nil
			}
			value, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			return &ReturnStmt{Value: value}, nil
		case "raise":
			p.next()
			if p.at(tokNewline, "") || p.at(tokEOF, "") || p.at(tokOp, ";") {
				return &RaiseStmt{}, nil
			}
			exc, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.accept(tokKeyword, "from") {
				if _, err := p.parseExpr(); err != nil {
					return nil, err
				}
			}
			return &RaiseStmt{Exc: exc}, nil
		case "import":
			return p.parseImport()
		case "from":
			return p.parseFromImport()
		}
	}
	return p.parseExprOrAssign()
}

func (p *parser) parseImport() (Stmt, error) {
	t, err := p.expect(tokKeyword, "import")
	if err != nil {
		return nil, err
	}
	name, err := p.parseModuleName()
	if err != nil {
		return nil, err
	}
	alias := ""
	if p.accept(tokKeyword, "as") {
		a, err := p.expect(tokName, "")
		if err != nil {
			return nil, err
		}
		alias = a.text
	}
	if p.at(tokOp, ",") {
		return nil, p.errorf(p.cur(), "one module per import statement")
	}
	return &ImportStmt{Name: name, Alias: alias, Line: t.line}, nil
}

func (p *parser) parseFromImport() (Stmt, error) {
	t, err := p.expect(tokKeyword, "from")
	if err != nil {
		return nil, err
	}
	module, err := p.parseModuleName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokKeyword, "import"); err != nil {
		return nil, err
	}
	if p.at(tokOp, "*") {
		return nil, p.errorf(p.cur(), "wildcard imports are not allowed")
	}
	var names, aliases []string
	for {
		n, err := p.expect(tokName, "")
		if err != nil {
			return nil, err
		}
		alias := ""
		if p.accept(tokKeyword, "as") {
			a, err := p.expect(tokName, "")
			if err != nil {
				return nil, err
			}
			alias = a.text
		}
		names = append(names, n.text)
		aliases = append(aliases, alias)
		if !p.accept(tokOp, ",") {
			break
		}
	}
	return &FromImportStmt{Module: module, Names: names, Aliases: aliases, Line: t.line}, nil
}

// parseModuleName accepts dotted module paths; the guard rejects anything
// outside the allow-list later, so the dotted form only needs to survive
// parsing.
func (p *parser) parseModuleName() (string, error) {
	n, err := p.expect(tokName, "")
	if err != nil {
		return "", err
	}
	parts := []string{n.text}
	for p.accept(tokOp, ".") {
		n, err := p.expect(tokName, "")
		if err != nil {
			return "", err
		}
		parts = append(parts, n.text)
	}
	return strings.Join(parts, "."), nil
}

func (p *parser) parseExprOrAssign() (Stmt, error) {
	first, err := p.parseTestList()
	if err != nil {
		return nil, err
	}

	// Augmented assignment.
	if t := p.cur(); t.kind == tokOp && len(t.text) >= 2 && strings.HasSuffix(t.text, "=") &&
		t.text != "==" && t.text != "!=" && t.text != "<=" && t.text != ">=" {
		p.next()
		target, err := p.toTarget(first, t)
		if err != nil {
			return nil, err
		}
		if _, ok := target.(*TupleTarget); ok {
			return nil, p.errorf(t, "illegal target for augmented assignment")
		}
		value, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		return &AugAssignStmt{Target: target, Op: strings.TrimSuffix(t.text, "="), Value: value}, nil
	}

	// Plain or chained assignment.
	if p.at(tokOp, "=") {
		exprs := []Expr{first}
		for p.accept(tokOp, "=") {
			e, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		}
		value := exprs[len(exprs)-1]
		targets := exprs[:len(exprs)-1]
		if len(targets) == 1 {
			target, err := p.toTarget(targets[0], p.cur())
			if err != nil {
				return nil, err
			}
			return &AssignStmt{Target: target, Value: value}, nil
		}
		// a = b = value desugars into consecutive assignments via a
		// chainTarget whose targets share the value.
		var ts []assignTarget
		for _, e := range targets {
			target, err := p.toTarget(e, p.cur())
			if err != nil {
				return nil, err
			}
			ts = append(ts, target)
		}
		return &AssignStmt{Target: &chainTarget{Targets: ts}, Value: value}, nil
	}

	return &ExprStmt{Expr: first}, nil
}

// chainTarget assigns one value to several targets in order (a = b = v).
type chainTarget struct {
	Targets []assignTarget
}

func (*chainTarget) targetNode() {}

func (p *parser) toTarget(e Expr, t token) (assignTarget, error) {
	switch n := e.(type) {
	case *NameExpr:
		return &NameTarget{Name: n.Name, Line: n.Line}, nil
	case *AttrExpr:
		return &AttrTarget{Obj: n.Obj, Name: n.Name}, nil
	case *IndexExpr:
		return &IndexTarget{Obj: n.Obj, Index: n.Index}, nil
	case *TupleExpr:
		var targets []assignTarget
		for _, item := range n.Items {
			sub, err := p.toTarget(item, t)
			if err != nil {
				return nil, err
			}
			targets = append(targets, sub)
		}
		return &TupleTarget{Targets: targets}, nil
	case *ListExpr:
		var targets []assignTarget
		for _, item := range n.Items {
			sub, err := p.toTarget(item, t)
			if err != nil {
				return nil, err
			}
			targets = append(targets, sub)
		}
		return &TupleTarget{Targets: targets}, nil
	default:
		return nil, p.errorf(t, "illegal assignment target")
	}
}

// Compound statements.

func (p *parser) parseIf() (Stmt, error) {
	if _, err := p.expect(tokKeyword, "if"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, Body: body}
	if p.at(tokKeyword, "elif") {
		p.tokens[p.pos] = token{kind: tokKeyword, text: "if", line: p.cur().line}
		nested, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{nested}
		return stmt, nil
	}
	if p.accept(tokKeyword, "else") {
		elseBody, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		stmt.Else = elseBody
	}
	return stmt, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	if _, err := p.expect(tokKeyword, "while"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	if p.at(tokKeyword, "else") {
		return nil, p.errorf(p.cur(), "'else' on loops is not supported")
	}
	return &WhileStmt{Cond: cond, Body: body}, nil
}

func (p *parser) parseFor() (Stmt, error) {
	if _, err := p.expect(tokKeyword, "for"); err != nil {
		return nil, err
	}
	target, err := p.parseForTarget()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokKeyword, "in"); err != nil {
		return nil, err
	}
	iter, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	if p.at(tokKeyword, "else") {
		return nil, p.errorf(p.cur(), "'else' on loops is not supported")
	}
	return &ForStmt{Target: target, Iter: iter, Body: body}, nil
}

// parseForTarget parses the target list between `for` and `in`.
func (p *parser) parseForTarget() (assignTarget, error) {
	start := p.cur()
	e, err := p.parseAtomTrailer()
	if err != nil {
		return nil, err
	}
	if !p.at(tokOp, ",") {
		return p.toTarget(e, start)
	}
	items := []Expr{e}
	for p.accept(tokOp, ",") {
		if p.at(tokKeyword, "in") {
			break
		}
		item, err := p.parseAtomTrailer()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return p.toTarget(&TupleExpr{Items: items}, start)
}

func (p *parser) parseDef() (Stmt, error) {
	if _, err := p.expect(tokKeyword, "def"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokName, "")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokOp, "("); err != nil {
		return nil, err
	}
	params, err := p.parseParams(")")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokOp, ")"); err != nil {
		return nil, err
	}
	if p.accept(tokOp, "->") {
		if _, err := p.parseExpr(); err != nil {
			return nil, err
		}
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	doc := ""
	if len(body) > 0 {
		if es, ok := body[0].(*ExprStmt); ok {
			if s, ok := es.Expr.(*StringExpr); ok {
				doc = s.Value
			}
		}
	}
	return &DefStmt{Name: name.text, Params: params, Body: body, Doc: doc}, nil
}

func (p *parser) parseParams(terminator string) ([]Param, error) {
	var params []Param
	for !p.at(tokOp, terminator) {
		if p.at(tokOp, "*") || p.at(tokOp, "**") {
			return nil, p.errorf(p.cur(), "starred parameters are not supported")
		}
		n, err := p.expect(tokName, "")
		if err != nil {
			return nil, err
		}
		param := Param{Name: n.text}
		if p.accept(tokOp, ":") {
			if _, err := p.parseExpr(); err != nil {
				return nil, err
			}
		}
		if p.accept(tokOp, "=") {
			d, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			param.Default = d
		}
		params = append(params, param)
		if !p.accept(tokOp, ",") {
			break
		}
	}
	return params, nil
}

func (p *parser) parseTry() (Stmt, error) {
	if _, err := p.expect(tokKeyword, "try"); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	stmt := &TryStmt{Body: body}
	for p.at(tokKeyword, "except") {
		p.next()
		clause := ExceptClause{}
		if !p.at(tokOp, ":") {
			if p.at(tokOp, "(") {
				p.next()
				for {
					c, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					clause.Classes = append(clause.Classes, c)
					if !p.accept(tokOp, ",") {
						break
					}
				}
				if _, err := p.expect(tokOp, ")"); err != nil {
					return nil, err
				}
			} else {
				c, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				clause.Classes = append(clause.Classes, c)
			}
			if p.accept(tokKeyword, "as") {
				n, err := p.expect(tokName, "")
				if err != nil {
					return nil, err
				}
				clause.Name = n.text
			}
		}
		clauseBody, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		clause.Body = clauseBody
		stmt.Excepts = append(stmt.Excepts, clause)
	}
	if p.at(tokKeyword, "else") {
		return nil, p.errorf(p.cur(), "'else' on try is not supported")
	}
	if p.accept(tokKeyword, "finally") {
		fin, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		stmt.Finally = fin
	}
	if len(stmt.Excepts) == 0 && len(stmt.Finally) == 0 {
		return nil, p.errorf(p.cur(), "try statement needs except or finally")
	}
	return stmt, nil
}

// parseSuite parses `: stmts` either inline or as an indented block.
func (p *parser) parseSuite() ([]Stmt, error) {
	if _, err := p.expect(tokOp, ":"); err != nil {
		return nil, err
	}
	if !p.at(tokNewline, "") {
		return p.parseSimpleLine()
	}
	p.next()
	for p.accept(tokNewline, "") {
	}
	if _, err := p.expect(tokIndent, ""); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.at(tokDedent, "") && !p.at(tokEOF, "") {
		if p.accept(tokNewline, "") {
			continue
		}
		ss, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, ss...)
	}
	p.accept(tokDedent, "")
	return stmts, nil
}

// Expressions.

// parseTestList parses comma-separated expressions, folding several into a
// tuple (`a, b = b, a` and bare tuple returns).
func (p *parser) parseTestList() (Expr, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.at(tokOp, ",") {
		return first, nil
	}
	items := []Expr{first}
	for p.accept(tokOp, ",") {
		if p.atExprEnd() {
			break
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &TupleExpr{Items: items}, nil
}

func (p *parser) atExprEnd() bool {
	t := p.cur()
	if t.kind == tokNewline || t.kind == tokEOF || t.kind == tokDedent {
		return true
	}
	if t.kind == tokOp {
		switch t.text {
		case ")", "]", "}", ":", ";", "=":
			return true
		}
	}
	if t.kind == tokKeyword && (t.text == "in" || t.text == "for" || t.text == "if") {
		return true
	}
	return false
}

// parseExpr parses a single expression (a "test" in grammar terms).
func (p *parser) parseExpr() (Expr, error) {
	if p.at(tokKeyword, "lambda") {
		return p.parseLambda()
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.accept(tokKeyword, "if") {
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokKeyword, "else"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &CondExpr{Cond: test, Then: cond, Else: els}, nil
	}
	return cond, nil
}

func (p *parser) parseLambda() (Expr, error) {
	if _, err := p.expect(tokKeyword, "lambda"); err != nil {
		return nil, err
	}
	var params []Param
	if !p.at(tokOp, ":") {
		var err error
		params, err = p.parseParams(":")
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokOp, ":"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &LambdaExpr{Params: params, Body: body}, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.at(tokKeyword, "or") {
		return left, nil
	}
	values := []Expr{left}
	for p.accept(tokKeyword, "or") {
		v, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &BoolOpExpr{Op: "or", Values: values}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.at(tokKeyword, "and") {
		return left, nil
	}
	values := []Expr{left}
	for p.accept(tokKeyword, "and") {
		v, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &BoolOpExpr{Op: "and", Values: values}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.accept(tokKeyword, "not") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rest []Expr
	for {
		op := ""
		t := p.cur()
		switch {
		case t.kind == tokOp && (t.text == "==" || t.text == "!=" || t.text == "<" || t.text == "<=" || t.text == ">" || t.text == ">="):
			op = t.text
			p.next()
		case t.kind == tokKeyword && t.text == "in":
			op = "in"
			p.next()
		case t.kind == tokKeyword && t.text == "not":
			// `not in`
			if p.tokens[p.pos+1].kind == tokKeyword && p.tokens[p.pos+1].text == "in" {
				op = "not in"
				p.next()
				p.next()
			}
		case t.kind == tokKeyword && t.text == "is":
			p.next()
			if p.accept(tokKeyword, "not") {
				op = "is not"
			} else {
				op = "is"
			}
		}
		if op == "" {
			break
		}
		r, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rest = append(rest, r)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &CompareExpr{Left: left, Ops: ops, Rest: rest}, nil
}

func (p *parser) parseArith() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: t.text, Left: left, Right: right, Line: t.line}
	}
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "//" && t.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: t.text, Left: left, Right: right, Line: t.line}
	}
}

func (p *parser) parseFactor() (Expr, error) {
	t := p.cur()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: t.text, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parseAtomTrailer()
	if err != nil {
		return nil, err
	}
	if t := p.cur(); t.kind == tokOp && t.text == "**" {
		p.next()
		exp, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: "**", Left: base, Right: exp, Line: t.line}, nil
	}
	return base, nil
}

func (p *parser) parseAtomTrailer() (Expr, error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		switch {
		case p.accept(tokOp, "."):
			n, err := p.expect(tokName, "")
			if err != nil {
				return nil, err
			}
			e = &AttrExpr{Obj: e, Name: n.text, Line: n.line}
		case p.accept(tokOp, "("):
			call := &CallExpr{Fn: e, Line: t.line}
			for !p.at(tokOp, ")") {
				if p.at(tokOp, "*") || p.at(tokOp, "**") {
					return nil, p.errorf(p.cur(), "starred arguments are not supported")
				}
				// keyword argument?
				if p.cur().kind == tokName && p.tokens[p.pos+1].kind == tokOp && p.tokens[p.pos+1].text == "=" {
					name := p.next().text
					p.next()
					v, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					call.KwNames = append(call.KwNames, name)
					call.KwValues = append(call.KwValues, v)
				} else {
					if len(call.KwNames) > 0 {
						return nil, p.errorf(p.cur(), "positional argument follows keyword argument")
					}
					v, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, v)
				}
				if !p.accept(tokOp, ",") {
					break
				}
			}
			if _, err := p.expect(tokOp, ")"); err != nil {
				return nil, err
			}
			e = call
		case p.accept(tokOp, "["):
			e, err = p.parseSubscript(e, t)
			if err != nil {
				return nil, err
			}
		default:
			return e, nil
		}
	}
}

func (p *parser) parseSubscript(obj Expr, t token) (Expr, error) {
	var start, stop, step Expr
	var err error
	isSlice := false

	if !p.at(tokOp, ":") {
		start, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.accept(tokOp, ":") {
		isSlice = true
		if !p.at(tokOp, ":") && !p.at(tokOp, "]") {
			stop, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if p.accept(tokOp, ":") {
			if !p.at(tokOp, "]") {
				step, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if _, err := p.expect(tokOp, "]"); err != nil {
		return nil, err
	}
	if isSlice {
		return &SliceExpr{Obj: obj, Start: start, Stop: stop, Step: step}, nil
	}
	return &IndexExpr{Obj: obj, Index: start, Line: t.line}, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tokName:
		p.next()
		return &NameExpr{Name: t.text, Line: t.line}, nil
	case t.kind == tokInt:
		p.next()
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			// Huge literals degrade to float like the scripts expect.
			f, ferr := strconv.ParseFloat(t.text, 64)
			if ferr != nil {
				return nil, p.errorf(t, "invalid number literal %q", t.text)
			}
			return &NumberExpr{IsFloat: true, Float: f}, nil
		}
		return &NumberExpr{Int: n}, nil
	case t.kind == tokFloat:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid number literal %q", t.text)
		}
		return &NumberExpr{IsFloat: true, Float: f}, nil
	case t.kind == tokString:
		p.next()
		text := t.text
		for p.at(tokString, "") {
			text += p.next().text
		}
		return &StringExpr{Value: text}, nil
	case t.kind == tokKeyword && t.text == "None":
		p.next()
		return &ConstExpr{Value: nil}, nil
	case t.kind == tokKeyword && t.text == "True":
		p.next()
		return &ConstExpr{Value: true}, nil
	case t.kind == tokKeyword && t.text == "False":
		p.next()
		return &ConstExpr{Value: false}, nil
	case t.kind == tokKeyword && t.text == "lambda":
		return p.parseLambda()
	case p.accept(tokOp, "("):
		if p.accept(tokOp, ")") {
			return &TupleExpr{}, nil
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.at(tokKeyword, "for") {
			return nil, p.errorf(p.cur(), "generator expressions are not supported")
		}
		if p.at(tokOp, ",") {
			items := []Expr{first}
			for p.accept(tokOp, ",") {
				if p.at(tokOp, ")") {
					break
				}
				item, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			if _, err := p.expect(tokOp, ")"); err != nil {
				return nil, err
			}
			return &TupleExpr{Items: items}, nil
		}
		if _, err := p.expect(tokOp, ")"); err != nil {
			return nil, err
		}
		return first, nil
	case p.accept(tokOp, "["):
		if p.accept(tokOp, "]") {
			return &ListExpr{}, nil
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.at(tokKeyword, "for") {
			return p.parseComprehension(first)
		}
		items := []Expr{first}
		for p.accept(tokOp, ",") {
			if p.at(tokOp, "]") {
				break
			}
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := p.expect(tokOp, "]"); err != nil {
			return nil, err
		}
		return &ListExpr{Items: items}, nil
	case p.accept(tokOp, "{"):
		return p.parseBraces()
	default:
		got := t.text
		if got == "" && t.kind == tokEOF {
			got = "end of input"
		}
		return nil, p.errorf(t, "unexpected %q", got)
	}
}

func (p *parser) parseComprehension(elt Expr) (Expr, error) {
	if _, err := p.expect(tokKeyword, "for"); err != nil {
		return nil, err
	}
	target, err := p.parseForTarget()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokKeyword, "in"); err != nil {
		return nil, err
	}
	iter, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	var cond Expr
	if p.accept(tokKeyword, "if") {
		cond, err = p.parseOr()
		if err != nil {
			return nil, err
		}
	}
	if p.at(tokKeyword, "for") {
		return nil, p.errorf(p.cur(), "nested comprehensions are not supported")
	}
	if _, err := p.expect(tokOp, "]"); err != nil {
		return nil, err
	}
	return &CompExpr{Elt: elt, Target: target, Iter: iter, Cond: cond}, nil
}

func (p *parser) parseBraces() (Expr, error) {
	if p.accept(tokOp, "}") {
		return &DictExpr{}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.accept(tokOp, ":") {
		// Dict literal.
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		keys := []Expr{first}
		values := []Expr{value}
		for p.accept(tokOp, ",") {
			if p.at(tokOp, "}") {
				break
			}
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokOp, ":"); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
			values = append(values, v)
		}
		if _, err := p.expect(tokOp, "}"); err != nil {
			return nil, err
		}
		return &DictExpr{Keys: keys, Values: values}, nil
	}
	// Set literal.
	items := []Expr{first}
	for p.accept(tokOp, ",") {
		if p.at(tokOp, "}") {
			break
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if _, err := p.expect(tokOp, "}"); err != nil {
		return nil, err
	}
	return &SetExpr{Items: items}, nil
}
