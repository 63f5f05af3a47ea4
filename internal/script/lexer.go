package script

import (
	"strings"
	"unicode"
)

// lexer produces an indentation-aware token stream. Newlines inside
// brackets are suppressed, comments are skipped, and indent/dedent tokens
// bracket nested blocks the way the parser expects.
type lexer struct {
	src    []rune
	pos    int
	line   int
	tokens []token
	indent []int
	depth  int // bracket nesting
}

// lex tokenizes source, returning a CompileError on malformed input.
func lex(src string) ([]token, error) {
	l := &lexer{
		src:    []rune(strings.ReplaceAll(src, "\r\n", "\n")),
		line:   1,
		indent: []int{0},
	}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	atLineStart := true
	for {
		if atLineStart && l.depth == 0 {
			if done, err := l.handleIndentation(); err != nil {
				return err
			} else if done {
				break
			}
			atLineStart = false
			continue
		}

		c, ok := l.peek()
		if !ok {
			break
		}

		switch {
		case c == '\n':
			l.pos++
			l.line++
			if l.depth == 0 {
				l.emit(tokNewline, "")
				atLineStart = true
			}
		case c == '#':
			for {
				c, ok := l.peek()
				if !ok || c == '\n' {
					break
				}
				l.pos++
			}
		case c == ' ' || c == '\t':
			l.pos++
		case c == '\\' && l.peekAt(1) == '\n':
			l.pos += 2
			l.line++
		case (c == 'r' || c == 'R' || c == 'b' || c == 'B' || c == 'u' || c == 'U') && isQuote(l.peekAt(1)):
			raw := c == 'r' || c == 'R'
			l.pos++
			if err := l.lexStringLiteral(raw); err != nil {
				return err
			}
		case (c == 'f' || c == 'F') && isQuote(l.peekAt(1)):
			return &CompileError{Message: "f-string literals are not supported", Line: l.line}
		case isIdentStart(c):
			l.lexName()
		case unicode.IsDigit(c) || (c == '.' && unicode.IsDigit(l.peekAt(1))):
			if err := l.lexNumber(); err != nil {
				return err
			}
		case c == '\'' || c == '"':
			if err := l.lexStringLiteral(false); err != nil {
				return err
			}
		default:
			if err := l.lexOperator(); err != nil {
				return err
			}
		}
	}

	// Flush a trailing logical line and any open blocks.
	if n := len(l.tokens); n > 0 && l.tokens[n-1].kind != tokNewline && l.tokens[n-1].kind != tokDedent {
		l.emit(tokNewline, "")
	}
	for len(l.indent) > 1 {
		l.indent = l.indent[:len(l.indent)-1]
		l.emit(tokDedent, "")
	}
	l.emit(tokEOF, "")
	return nil
}

// handleIndentation skips blank and comment-only lines, measures the
// indentation of the next content line, and emits indent/dedent tokens.
func (l *lexer) handleIndentation() (done bool, err error) {
	for {
		width := 0
		for {
			c, ok := l.peek()
			if !ok {
				return true, nil
			}
			if c == ' ' {
				width++
				l.pos++
			} else if c == '\t' {
				width += 8 - width%8
				l.pos++
			} else {
				break
			}
		}

		c, ok := l.peek()
		if !ok {
			return true, nil
		}
		if c == '\n' {
			l.pos++
			l.line++
			continue
		}
		if c == '#' {
			for {
				c, ok := l.peek()
				if !ok {
					return true, nil
				}
				if c == '\n' {
					l.pos++
					l.line++
					break
				}
				l.pos++
			}
			continue
		}

		current := l.indent[len(l.indent)-1]
		switch {
		case width > current:
			l.indent = append(l.indent, width)
			l.emit(tokIndent, "")
		case width < current:
			for len(l.indent) > 1 && l.indent[len(l.indent)-1] > width {
				l.indent = l.indent[:len(l.indent)-1]
				l.emit(tokDedent, "")
			}
			if l.indent[len(l.indent)-1] != width {
				return false, &CompileError{Message: "unindent does not match any outer indentation level", Line: l.line}
			}
		}
		return false, nil
	}
}

func (l *lexer) lexName() {
	start := l.pos
	for {
		c, ok := l.peek()
		if !ok || !isIdentPart(c) {
			break
		}
		l.pos++
	}
	text := string(l.src[start:l.pos])
	if keywords[text] || reservedKeywords[text] {
		l.emit(tokKeyword, text)
		return
	}
	l.emit(tokName, text)
}

func (l *lexer) lexNumber() error {
	start := l.pos
	isFloat := false
	for {
		c, ok := l.peek()
		if !ok {
			break
		}
		if unicode.IsDigit(c) || c == '_' {
			l.pos++
		} else if c == '.' && !isFloat {
			isFloat = true
			l.pos++
		} else if (c == 'e' || c == 'E') && l.pos > start {
			next := l.peekAt(1)
			if unicode.IsDigit(next) || ((next == '+' || next == '-') && unicode.IsDigit(l.peekAt(2))) {
				isFloat = true
				l.pos++
				if next == '+' || next == '-' {
					l.pos++
				}
			} else {
				break
			}
		} else {
			break
		}
	}
	text := strings.ReplaceAll(string(l.src[start:l.pos]), "_", "")
	if isFloat {
		l.emit(tokFloat, text)
	} else {
		l.emit(tokInt, text)
	}
	return nil
}

func (l *lexer) lexStringLiteral(raw bool) error {
	quote, _ := l.peek()
	startLine := l.line

	// Triple-quoted strings span lines.
	if l.peekAt(1) == quote && l.peekAt(2) == quote {
		l.pos += 3
		var b strings.Builder
		for {
			c, ok := l.peek()
			if !ok {
				return &CompileError{Message: "unterminated triple-quoted string", Line: startLine}
			}
			if c == quote && l.peekAt(1) == quote && l.peekAt(2) == quote {
				l.pos += 3
				break
			}
			if c == '\\' {
				decoded, width, err := l.consumeEscape(raw)
				if err != nil {
					return err
				}
				b.WriteString(decoded)
				l.pos += width
				continue
			}
			if c == '\n' {
				l.line++
			}
			b.WriteRune(c)
			l.pos++
		}
		l.emit(tokString, b.String())
		return nil
	}

	l.pos++
	var b strings.Builder
	for {
		c, ok := l.peek()
		if !ok || c == '\n' {
			return &CompileError{Message: "unterminated string literal", Line: startLine}
		}
		if c == quote {
			l.pos++
			break
		}
		if c == '\\' {
			decoded, width, err := l.consumeEscape(raw)
			if err != nil {
				return err
			}
			b.WriteString(decoded)
			l.pos += width
			continue
		}
		b.WriteRune(c)
		l.pos++
	}
	l.emit(tokString, b.String())
	return nil
}

// consumeEscape handles a backslash sequence. Raw strings keep the
// backslash but still let it escape the closing quote.
func (l *lexer) consumeEscape(raw bool) (string, int, error) {
	if raw {
		c := l.peekAt(1)
		if c == 0 {
			return "\\", 1, nil
		}
		if c == '\n' {
			l.line++
		}
		return "\\" + string(c), 2, nil
	}
	return l.decodeEscape()
}

func isQuote(c rune) bool {
	return c == '\'' || c == '"'
}

// decodeEscape interprets the escape sequence at l.pos (which holds the
// backslash) and returns the decoded text plus consumed width.
func (l *lexer) decodeEscape() (string, int, error) {
	c := l.peekAt(1)
	switch c {
	case 'n':
		return "\n", 2, nil
	case 't':
		return "\t", 2, nil
	case 'r':
		return "\r", 2, nil
	case '\\':
		return "\\", 2, nil
	case '\'':
		return "'", 2, nil
	case '"':
		return "\"", 2, nil
	case '0':
		return "\x00", 2, nil
	case '\n':
		l.line++
		return "", 2, nil
	default:
		// Unknown escapes pass through verbatim, backslash included.
		if c == 0 {
			return "\\", 1, nil
		}
		return "\\" + string(c), 2, nil
	}
}

var multiCharOps = []string{
	"**=", "//=", "==", "!=", "<=", ">=", "**", "//", "+=", "-=", "*=", "/=",
	"%=", "->",
}

var singleCharOps = "+-*/%()[]{},:.<>=;@"

func (l *lexer) lexOperator() error {
	rest := string(l.src[l.pos:])
	for _, op := range multiCharOps {
		if strings.HasPrefix(rest, op) {
			l.adjustDepth(op)
			l.pos += len(op)
			l.emit(tokOp, op)
			return nil
		}
	}
	c, _ := l.peek()
	if strings.ContainsRune(singleCharOps, c) {
		l.adjustDepth(string(c))
		l.pos++
		l.emit(tokOp, string(c))
		return nil
	}
	return &CompileError{Message: "invalid character " + quoteString(string(c)), Line: l.line}
}

func (l *lexer) adjustDepth(op string) {
	switch op {
	case "(", "[", "{":
		l.depth++
	case ")", "]", "}":
		if l.depth > 0 {
			l.depth--
		}
	}
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, line: l.line})
}

func (l *lexer) peek() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func isIdentStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
