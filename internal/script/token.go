package script

// tokenKind enumerates lexical token categories.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokKeyword
	tokInt
	tokFloat
	tokString
	tokOp
)

// token is one lexical unit with its source line for diagnostics.
type token struct {
	kind tokenKind
	text string
	line int
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"break": true, "continue": true, "def": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "if": true,
	"import": true, "in": true, "is": true, "lambda": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true,
	"while": true,
}

// reservedKeywords are recognized but rejected at compile time: the sandbox
// language deliberately has no classes, context managers, generators,
// asynchronous code or scope declarations.
var reservedKeywords = map[string]bool{
	"class": true, "with": true, "yield": true, "async": true, "await": true,
	"global": true, "nonlocal": true, "del": true, "assert": true,
}
