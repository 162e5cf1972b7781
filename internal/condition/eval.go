// Package condition compiles and evaluates the visibleIf expressions attached
// to survey questions.
//
// Evaluation is total: an expression that cannot be parsed compiles to a
// condition that is always true, so a question is never hidden because of a
// malformed rule.
package condition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Condition is a compiled visibleIf expression.
type Condition struct {
	source string
	root   Node
	err    error
}

// Compile parses expr once for repeated evaluation. Blank or unparseable
// expressions yield an always-visible condition; the parse error is kept and
// available through Err.
func Compile(expr string) Condition {
	c := Condition{source: expr}
	if strings.TrimSpace(expr) == "" {
		return c
	}
	c.root, c.err = Parse(expr)
	return c
}

// Evaluate compiles and evaluates expr in one step.
func Evaluate(expr string, responses map[string]any) bool {
	return Compile(expr).Eval(responses)
}

// Eval reports whether the condition holds for responses.
func (c Condition) Eval(responses map[string]any) bool {
	if c.root == nil {
		return true
	}
	return c.root.Eval(responses)
}

// Err returns the parse error, if any.
func (c Condition) Err() error { return c.err }

// Source returns the original expression text.
func (c Condition) Source() string { return c.source }

// Fields lists the response keys the condition reads, sorted.
func (c Condition) Fields() []string {
	seen := make(map[string]struct{})
	collectFields(c.root, seen)
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func collectFields(n Node, seen map[string]struct{}) {
	switch v := n.(type) {
	case *Comparison:
		seen[v.Field] = struct{}{}
	case *Contains:
		seen[v.Field] = struct{}{}
	case *NotEmpty:
		seen[v.Field] = struct{}{}
	case *Membership:
		seen[v.Field] = struct{}{}
	case *Logical:
		for _, t := range v.Terms {
			collectFields(t, seen)
		}
	}
}

// ─── Node evaluation ────────────────────────────────────────────────

func (l *Logical) Eval(responses map[string]any) bool {
	if l.Op == KindAnd {
		for _, t := range l.Terms {
			if !t.Eval(responses) {
				return false
			}
		}
		return true
	}
	for _, t := range l.Terms {
		if t.Eval(responses) {
			return true
		}
	}
	return false
}

func (c *Comparison) Eval(responses map[string]any) bool {
	answer := responses[c.Field]
	switch c.Op {
	case KindEq:
		return equals(answer, c.Value)
	case KindNeq:
		return !equals(answer, c.Value)
	}

	// Ordering comparisons are false for missing, blank or non-numeric answers.
	n, ok := toNumber(answer)
	if !ok || !c.Value.Numeric {
		return false
	}
	switch c.Op {
	case KindGte:
		return n >= c.Value.Number
	case KindGt:
		return n > c.Value.Number
	case KindLt:
		return n < c.Value.Number
	case KindLte:
		return n <= c.Value.Number
	}
	return false
}

func (c *Contains) Eval(responses map[string]any) bool {
	needle := strings.ToLower(c.Value.Text)
	for _, s := range toStrings(responses[c.Field]) {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func (n *NotEmpty) Eval(responses map[string]any) bool {
	return !isEmpty(responses[n.Field])
}

func (m *Membership) Eval(responses map[string]any) bool {
	answers := toStrings(responses[m.Field])
	if len(answers) == 0 {
		return false
	}
	have := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		have[a] = struct{}{}
	}

	for _, v := range m.Values {
		_, found := have[v.Text]
		if m.Op == KindAnyOf && found {
			return true
		}
		if m.Op == KindAllOf && !found {
			return false
		}
	}
	return m.Op == KindAllOf
}

// ─── Value coercion ─────────────────────────────────────────────────

// equals compares a scalar answer with lit. A single-choice answer stored
// as a one-element array compares as that element; longer arrays never equal
// a literal, use anyof or allof for them.
func equals(answer any, lit Literal) bool {
	switch v := answer.(type) {
	case []any:
		if len(v) != 1 {
			return len(v) == 0 && lit.Text == ""
		}
		return equals(v[0], lit)
	case []string:
		if len(v) != 1 {
			return len(v) == 0 && lit.Text == ""
		}
		return equals(v[0], lit)
	case nil:
		return lit.Text == ""
	case bool:
		return boolMatches(v, lit.Text)
	}

	s := toString(answer)
	if s == lit.Text {
		return true
	}
	if lit.Numeric {
		if n, ok := toNumber(answer); ok {
			return n == lit.Number
		}
	}
	return false
}

func boolMatches(v bool, text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "yes":
		return v
	case "false", "no":
		return !v
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		return n, err == nil
	}
	return 0, false
}

// toStrings flattens an answer into the string values it holds: a scalar
// yields one value, arrays yield their elements and maps their values.
func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, toStrings(e)...)
		}
		return out
	case map[string]string:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, e)
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, toStrings(e)...)
		}
		return out
	default:
		return []string{toString(t)}
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case map[string]string:
		return len(t) == 0
	}
	return false
}
