package module

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseManifest extracts the first dictionary literal from manifest source
// and returns it as a map. The source is never executed: only string,
// number, boolean, None, list, tuple and dict literals are understood, so a
// manifest that builds its mapping with expressions is rejected.
func ParseManifest(src []byte) (map[string]any, error) {
	src = bytes.TrimPrefix(src, utf8BOM)
	p := &literalParser{lx: &lexer{src: src, line: 1}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for !(p.tok.kind == tokPunct && p.tok.text == "{") {
		if p.tok.kind == tokEOF {
			return nil, fmt.Errorf("no dictionary literal found")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	v, err := p.value()
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

var utf8BOM = []byte("\xef\xbb\xbf")

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokName
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	src  []byte
	pos  int
	line int
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", l.line, fmt.Sprintf(format, args...))
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			l.pos++
		case c == '\\' && l.peekByte(1) == '\n':
			l.pos += 2
			l.line++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return l.token()
		}
	}
	return token{kind: tokEOF, line: l.line}, nil
}

func (l *lexer) token() (token, error) {
	c := l.src[l.pos]
	line := l.line

	if prefix, ok := l.stringPrefix(); ok {
		s, err := l.readString(prefix)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, line: line}, nil
	}

	switch {
	case c >= '0' && c <= '9', c == '.' && isDigit(l.peekByte(1)):
		start := l.pos
		for l.pos < len(l.src) && (isAlnum(l.src[l.pos]) || l.src[l.pos] == '.' || l.src[l.pos] == '_' ||
			((l.src[l.pos] == '+' || l.src[l.pos] == '-') && (l.src[l.pos-1] == 'e' || l.src[l.pos-1] == 'E'))) {
			l.pos++
		}
		return token{kind: tokNumber, text: string(l.src[start:l.pos]), line: line}, nil
	case c == '_' || c >= utf8.RuneSelf || unicode.IsLetter(rune(c)):
		start := l.pos
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRune(l.src[l.pos:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.pos += size
		}
		if l.pos == start {
			r, _ := utf8.DecodeRune(l.src[l.pos:])
			return token{}, l.errorf("unexpected character %q", r)
		}
		return token{kind: tokName, text: string(l.src[start:l.pos]), line: line}, nil
	default:
		l.pos++
		return token{kind: tokPunct, text: string(c), line: line}, nil
	}
}

// stringPrefix reports whether a string literal starts at the current
// position and returns its lowercase prefix letters (r, b, u, rb, br).
func (l *lexer) stringPrefix() (string, bool) {
	i := 0
	for i < 2 && l.pos+i < len(l.src) && strings.ContainsRune("rRbBuUfF", rune(l.src[l.pos+i])) {
		i++
	}
	if l.pos+i < len(l.src) && (l.src[l.pos+i] == '\'' || l.src[l.pos+i] == '"') {
		return strings.ToLower(string(l.src[l.pos : l.pos+i])), true
	}
	return "", false
}

func (l *lexer) readString(prefix string) (string, error) {
	if strings.Contains(prefix, "f") {
		return "", l.errorf("f-strings are not literals")
	}
	raw := strings.Contains(prefix, "r")
	l.pos += len(prefix)

	quote := l.src[l.pos]
	triple := l.peekByte(1) == quote && l.peekByte(2) == quote
	if triple {
		l.pos += 3
	} else {
		l.pos++
	}

	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", l.errorf("unterminated string")
		}
		c := l.src[l.pos]

		if c == quote {
			if !triple {
				l.pos++
				return b.String(), nil
			}
			if l.peekByte(1) == quote && l.peekByte(2) == quote {
				l.pos += 3
				return b.String(), nil
			}
		}
		if c == '\n' {
			if !triple {
				return "", l.errorf("newline in string")
			}
			l.line++
		}

		if c == '\\' && l.pos+1 < len(l.src) {
			if raw {
				b.WriteByte(c)
				b.WriteByte(l.src[l.pos+1])
				if l.src[l.pos+1] == '\n' {
					l.line++
				}
				l.pos += 2
				continue
			}
			if err := l.readEscape(&b); err != nil {
				return "", err
			}
			continue
		}

		b.WriteByte(c)
		l.pos++
	}
}

func (l *lexer) readEscape(b *strings.Builder) error {
	e := l.src[l.pos+1]
	l.pos += 2
	switch e {
	case '\n':
		l.line++
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case '0':
		b.WriteByte(0)
	case '\\', '\'', '"':
		b.WriteByte(e)
	case 'x', 'u', 'U':
		n := map[byte]int{'x': 2, 'u': 4, 'U': 8}[e]
		if l.pos+n > len(l.src) {
			return l.errorf("truncated \\%c escape", e)
		}
		code, err := strconv.ParseUint(string(l.src[l.pos:l.pos+n]), 16, 32)
		if err != nil {
			return l.errorf("invalid \\%c escape", e)
		}
		b.WriteRune(rune(code))
		l.pos += n
	default:
		b.WriteByte('\\')
		b.WriteByte(e)
	}
	return nil
}

type literalParser struct {
	lx  *lexer
	tok token
}

func (p *literalParser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.tok.line, fmt.Sprintf(format, args...))
}

func (p *literalParser) isPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *literalParser) expect(s string) error {
	if !p.isPunct(s) {
		return p.errorf("expected %q, found %q", s, p.tok.text)
	}
	return p.advance()
}

func (p *literalParser) value() (any, error) {
	switch p.tok.kind {
	case tokString:
		var b strings.Builder
		for p.tok.kind == tokString {
			b.WriteString(p.tok.text)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		return b.String(), nil
	case tokNumber:
		return p.number(false)
	case tokName:
		var v any
		switch p.tok.text {
		case "True":
			v = true
		case "False":
			v = false
		case "None":
			v = nil
		default:
			return nil, p.errorf("unsupported name %q", p.tok.text)
		}
		return v, p.advance()
	case tokPunct:
		switch p.tok.text {
		case "{":
			return p.dict()
		case "[":
			return p.sequence("]")
		case "(":
			return p.sequence(")")
		case "-", "+":
			neg := p.tok.text == "-"
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokNumber {
				return nil, p.errorf("expected number after sign")
			}
			return p.number(neg)
		}
	case tokEOF:
		return nil, p.errorf("unexpected end of file")
	}
	return nil, p.errorf("unexpected %q", p.tok.text)
}

func (p *literalParser) number(neg bool) (any, error) {
	text := strings.ReplaceAll(p.tok.text, "_", "")
	if neg {
		text = "-" + text
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return f, nil
}

func (p *literalParser) dict() (any, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	out := map[string]any{}
	for !p.isPunct("}") {
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		key, ok := k.(string)
		if !ok {
			key = fmt.Sprint(k)
		}
		out[key] = v

		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if !p.isPunct("}") {
			return nil, p.errorf("expected ',' or '}' in dict, found %q", p.tok.text)
		}
	}
	return out, p.advance()
}

// sequence parses lists and tuples. A parenthesized single value without a
// trailing comma is a grouping, not a tuple.
func (p *literalParser) sequence(closing string) (any, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	items := []any{}
	sawComma := false
	for !p.isPunct(closing) {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if p.isPunct(",") {
			sawComma = true
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if !p.isPunct(closing) {
			return nil, p.errorf("expected ',' or %q, found %q", closing, p.tok.text)
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if closing == ")" && len(items) == 1 && !sawComma {
		return items[0], nil
	}
	return items, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
