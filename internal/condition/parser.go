package condition

import (
	"errors"
	"fmt"
)

// ErrEmptyExpression is returned by Parse for blank input.
var ErrEmptyExpression = errors.New("empty expression")

var comparisonOps = map[string]Kind{
	"==": KindEq,
	"=":  KindEq,
	"!=": KindNeq,
	"<>": KindNeq,
	">=": KindGte,
	">":  KindGt,
	"<":  KindLt,
	"<=": KindLte,
}

type parser struct {
	toks []token
	pos  int
}

// Parse turns a visibleIf expression into an AST. "and" binds tighter than
// "or" and parentheses may nest to any depth.
func Parse(expr string) (Node, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, ErrEmptyExpression
	}

	p := &parser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at %d", tok.text, tok.pos)
	}
	return node, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) parseOr() (Node, error) {
	return p.parseChain(KindOr, "or", p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseChain(KindAnd, "and", p.parsePrimary)
}

func (p *parser) parseChain(op Kind, keyword string, operand func() (Node, error)) (Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.isKeyword(keyword) {
		p.next()
		term, err := operand()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &Logical{Op: op, Terms: terms}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokLParen:
		p.next()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at %d", closing.pos)
		}
		return node, nil
	case tokField:
		return p.parseComparison()
	default:
		return nil, fmt.Errorf("expected field or ( at %d, got %q", tok.pos, tok.text)
	}
}

func (p *parser) parseComparison() (Node, error) {
	field := p.next().text
	tok := p.next()

	switch tok.kind {
	case tokOp:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: comparisonOps[tok.text], Field: field, Value: lit}, nil
	case tokIdent:
		switch tok.text {
		case "notempty":
			return &NotEmpty{Field: field}, nil
		case "contains":
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			return &Contains{Field: field, Value: lit}, nil
		case "allof", "anyof":
			values, err := p.parseList()
			if err != nil {
				return nil, err
			}
			return &Membership{Op: Kind(tok.text), Field: field, Values: values}, nil
		}
	}
	return nil, fmt.Errorf("unknown operator %q at %d", tok.text, tok.pos)
}

func (p *parser) parseLiteral() (Literal, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return newLiteral(tok.text), nil
	case tokNumber:
		lit := newLiteral(tok.text)
		if !lit.Numeric {
			return Literal{}, fmt.Errorf("malformed number %q at %d", tok.text, tok.pos)
		}
		return lit, nil
	case tokIdent:
		if tok.text == "true" || tok.text == "false" {
			return Literal{Text: tok.text}, nil
		}
	}
	return Literal{}, fmt.Errorf("expected literal at %d, got %q", tok.pos, tok.text)
}

func (p *parser) parseList() ([]Literal, error) {
	if open := p.next(); open.kind != tokLBracket {
		return nil, fmt.Errorf("expected [ at %d", open.pos)
	}
	var values []Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRBracket:
			return values, nil
		default:
			return nil, fmt.Errorf("expected , or ] at %d", tok.pos)
		}
	}
}
