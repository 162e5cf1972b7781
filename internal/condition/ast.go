package condition

import (
	"strconv"
	"strings"
)

// Kind tags the node types of a parsed condition.
type Kind string

const (
	KindEq       Kind = "eq"
	KindNeq      Kind = "neq"
	KindGte      Kind = "gte"
	KindGt       Kind = "gt"
	KindLt       Kind = "lt"
	KindLte      Kind = "lte"
	KindContains Kind = "contains"
	KindNotEmpty Kind = "notempty"
	KindAllOf    Kind = "allof"
	KindAnyOf    Kind = "anyof"
	KindAnd      Kind = "and"
	KindOr       Kind = "or"
)

// Node is one node of a condition AST.
type Node interface {
	Kind() Kind
	Eval(responses map[string]any) bool
	String() string
}

// Literal is a constant operand. Numeric is set when Text parses as a number.
type Literal struct {
	Text    string
	Number  float64
	Numeric bool
}

func newLiteral(text string) Literal {
	lit := Literal{Text: text}
	if n, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		lit.Number = n
		lit.Numeric = true
	}
	return lit
}

func (l Literal) String() string {
	if l.Numeric {
		return l.Text
	}
	return "'" + l.Text + "'"
}

// Comparison covers ==, !=, >=, >, < and <=.
type Comparison struct {
	Op    Kind
	Field string
	Value Literal
}

func (c *Comparison) Kind() Kind { return c.Op }

func (c *Comparison) String() string {
	sym := map[Kind]string{KindEq: "==", KindNeq: "!=", KindGte: ">=", KindGt: ">", KindLt: "<", KindLte: "<="}[c.Op]
	return "{" + c.Field + "} " + sym + " " + c.Value.String()
}

// Contains is a substring test against the answer.
type Contains struct {
	Field string
	Value Literal
}

func (c *Contains) Kind() Kind { return KindContains }

func (c *Contains) String() string {
	return "{" + c.Field + "} contains " + c.Value.String()
}

// NotEmpty is true when the field holds a non-blank answer.
type NotEmpty struct {
	Field string
}

func (n *NotEmpty) Kind() Kind { return KindNotEmpty }

func (n *NotEmpty) String() string { return "{" + n.Field + "} notempty" }

// Membership covers allof and anyof.
type Membership struct {
	Op     Kind
	Field  string
	Values []Literal
}

func (m *Membership) Kind() Kind { return m.Op }

func (m *Membership) String() string {
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = v.String()
	}
	return "{" + m.Field + "} " + string(m.Op) + " [" + strings.Join(parts, ", ") + "]"
}

// Logical joins two or more terms with and/or.
type Logical struct {
	Op    Kind
	Terms []Node
}

func (l *Logical) Kind() Kind { return l.Op }

func (l *Logical) String() string {
	parts := make([]string, len(l.Terms))
	for i, t := range l.Terms {
		parts[i] = t.String()
		if sub, ok := t.(*Logical); ok && sub.Op != l.Op {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, " "+string(l.Op)+" ")
}
