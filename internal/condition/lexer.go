package condition

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokField
	tokString
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize splits a visibleIf expression into tokens. Keywords (and, or,
// contains, notempty, allof, anyof, true, false) are emitted as tokIdent and
// resolved by the parser.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := rune(src[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '{':
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated field reference at %d", i)
			}
			name := strings.TrimSpace(src[i+1 : i+1+end])
			if name == "" {
				return nil, fmt.Errorf("empty field reference at %d", i)
			}
			toks = append(toks, token{kind: tokField, text: name, pos: i})
			i += end + 2
		case ch == '\'' || ch == '"':
			end := strings.IndexByte(src[i+1:], byte(ch))
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at %d", i)
			}
			toks = append(toks, token{kind: tokString, text: src[i+1 : i+1+end], pos: i})
			i += end + 2
		case ch == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case ch == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case ch == '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case ch == ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case ch == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case strings.ContainsRune("=!<>", ch):
			op, width := scanOperator(src[i:])
			if op == "" {
				return nil, fmt.Errorf("unexpected %q at %d", ch, i)
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += width
		case ch == '-' || ch == '.' || unicode.IsDigit(ch):
			start := i
			i++
			for i < len(src) && (src[i] == '.' || unicode.IsDigit(rune(src[i]))) {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case unicode.IsLetter(ch) || ch == '_':
			start := i
			for i < len(src) && (unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i])) || src[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(src[start:i]), pos: start})
		default:
			return nil, fmt.Errorf("unexpected %q at %d", ch, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func scanOperator(s string) (string, int) {
	for _, op := range []string{"==", "!=", "<>", ">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(s, op) {
			return op, len(op)
		}
	}
	return "", 0
}
