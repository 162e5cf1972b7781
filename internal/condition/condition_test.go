package condition

import (
	"testing"
)

func TestEvaluate_Comparisons(t *testing.T) {
	responses := map[string]any{
		"industry":  "Retail",
		"employees": "42",
		"revenue":   float64(1500000),
		"has_board": true,
		"blank":     "  ",
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"{industry} == 'Retail'", true},
		{"{industry} = 'Retail'", true},
		{"{industry} == 'retail'", false},
		{"{industry} != 'Retail'", false},
		{"{industry} <> 'Manufacturing'", true},
		{"{employees} >= 42", true},
		{"{employees} > 42", false},
		{"{employees} < 50", true},
		{"{employees} <= 10", false},
		{"{revenue} > 1000000", true},
		{"{revenue} == 1500000", true},
		{"{missing} >= 0", false},
		{"{blank} >= 0", false},
		{"{industry} > 3", false},
		{"{has_board} == 'Yes'", true},
		{"{has_board} == 'No'", false},
		{"{has_board} == true", true},
		{"{missing} == ''", true},
		{"{missing} != 'x'", true},
	}

	for _, tc := range cases {
		if got := Evaluate(tc.expr, responses); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_EqualityOnArrayAnswers(t *testing.T) {
	responses := map[string]any{
		"stage":    []any{"Growth"},
		"size":     []string{"25"},
		"channels": []any{"Online", "Wholesale"},
		"none":     []any{},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"{stage} == 'Growth'", true},
		{"{stage} != 'Growth'", false},
		{"{stage} == 'Startup'", false},
		{"{size} == 25", true},
		{"{channels} == 'Online'", false},
		{"{channels} == '[Online Wholesale]'", false},
		{"{channels} != 'Online'", true},
		{"{none} == ''", true},
		{"{none} != 'x'", true},
	}

	for _, tc := range cases {
		if got := Evaluate(tc.expr, responses); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_ContainsIsCaseInsensitive(t *testing.T) {
	responses := map[string]any{
		"challenges": "Cash flow and HIRING",
		"channels":   []any{"Online Store", "Wholesale"},
	}

	if !Evaluate("{challenges} contains 'hiring'", responses) {
		t.Error("expected substring match ignoring case")
	}
	if Evaluate("{challenges} contains 'debt'", responses) {
		t.Error("unexpected match for absent substring")
	}
	if !Evaluate("{channels} contains 'online'", responses) {
		t.Error("expected match against an array element")
	}
}

func TestEvaluate_NotEmpty(t *testing.T) {
	responses := map[string]any{
		"name":    "Acme",
		"spaces":  "   ",
		"empty":   []any{},
		"choices": []any{"a"},
		"grid":    map[string]any{"q1": "x"},
		"zero":    float64(0),
	}

	cases := map[string]bool{
		"name":    true,
		"spaces":  false,
		"empty":   false,
		"choices": true,
		"grid":    true,
		"zero":    true,
		"absent":  false,
	}
	for field, want := range cases {
		if got := Evaluate("{"+field+"} notempty", responses); got != want {
			t.Errorf("%s notempty = %v, want %v", field, got, want)
		}
	}
}

func TestEvaluate_Membership(t *testing.T) {
	responses := map[string]any{
		"goals":  []any{"growth", "exit", "succession"},
		"stage":  "growth",
		"nobody": nil,
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"{goals} allof ['growth', 'exit']", true},
		{"{goals} allof ['growth', 'ipo']", false},
		{"{goals} anyof ['ipo', 'exit']", true},
		{"{goals} anyof ['ipo']", false},
		{"{stage} allof ['growth']", true},
		{"{stage} anyof ['startup', 'growth']", true},
		{"{nobody} anyof ['growth']", false},
	}
	for _, tc := range cases {
		if got := Evaluate(tc.expr, responses); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_AndOr(t *testing.T) {
	and := "{a} == 'X' and {b} == 'Y'"
	or := "{a} == 'X' or {b} == 'Y'"

	cases := []struct {
		a, b    string
		wantAnd bool
		wantOr  bool
	}{
		{"X", "Y", true, true},
		{"X", "N", false, true},
		{"N", "Y", false, true},
		{"N", "N", false, false},
	}
	for _, tc := range cases {
		r := map[string]any{"a": tc.a, "b": tc.b}
		if got := Evaluate(and, r); got != tc.wantAnd {
			t.Errorf("and with a=%s b=%s: got %v, want %v", tc.a, tc.b, got, tc.wantAnd)
		}
		if got := Evaluate(or, r); got != tc.wantOr {
			t.Errorf("or with a=%s b=%s: got %v, want %v", tc.a, tc.b, got, tc.wantOr)
		}
	}
}

func TestEvaluate_PrecedenceAndNesting(t *testing.T) {
	r := map[string]any{"a": "1", "b": "0", "c": "1"}

	// and binds tighter: a or (b and c)
	if !Evaluate("{a} == '1' or {b} == '1' and {c} == '1'", r) {
		t.Error("expected a or (b and c) to be true")
	}
	if Evaluate("({a} == '1' or {b} == '1') and {c} == '0'", r) {
		t.Error("expected grouped or followed by false and to be false")
	}
	if !Evaluate("((({a} == '1')))", r) {
		t.Error("expected nested parentheses to unwrap")
	}
	if !Evaluate("({a} == '1' and ({b} == '1' or {c} == '1'))", r) {
		t.Error("expected nested group to evaluate")
	}
}

func TestEvaluate_FailOpen(t *testing.T) {
	cases := []string{
		"garbage",
		"",
		"   ",
		"{a} ==",
		"{a} between 1 and 2",
		"({a} == 'x'",
		"{a} == 'unterminated",
		"{a} allof 'x'",
		"{} == 'x'",
	}
	for _, expr := range cases {
		if !Evaluate(expr, map[string]any{}) {
			t.Errorf("Evaluate(%q) = false, want fail-open true", expr)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	r := map[string]any{"a": "X", "n": "7"}
	expr := "{a} == 'X' and {n} >= 5"
	first := Evaluate(expr, r)
	for i := 0; i < 10; i++ {
		if Evaluate(expr, r) != first {
			t.Fatal("evaluation changed between calls")
		}
	}
	if r["a"] != "X" || r["n"] != "7" || len(r) != 2 {
		t.Errorf("responses mutated: %v", r)
	}
}

func TestCompile_KeepsParseError(t *testing.T) {
	c := Compile("{a} ~= 1")
	if c.Err() == nil {
		t.Fatal("expected parse error")
	}
	if !c.Eval(nil) {
		t.Error("expected fail-open evaluation")
	}

	ok := Compile("{b} notempty or {a} == 'x'")
	if ok.Err() != nil {
		t.Fatalf("unexpected error: %v", ok.Err())
	}
	fields := ok.Fields()
	if len(fields) != 2 || fields[0] != "a" || fields[1] != "b" {
		t.Errorf("Fields: got %v, want [a b]", fields)
	}
}

func TestParse_AST(t *testing.T) {
	node, err := Parse("{a} == 'x' or {b} >= 3 and {c} allof ['p', 'q']")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if node.Kind() != KindOr {
		t.Fatalf("root kind: got %s, want %s", node.Kind(), KindOr)
	}
	or := node.(*Logical)
	if len(or.Terms) != 2 {
		t.Fatalf("or terms: got %d, want 2", len(or.Terms))
	}
	if or.Terms[0].Kind() != KindEq {
		t.Errorf("first term: got %s, want %s", or.Terms[0].Kind(), KindEq)
	}
	if or.Terms[1].Kind() != KindAnd {
		t.Errorf("second term: got %s, want %s", or.Terms[1].Kind(), KindAnd)
	}

	want := "{a} == 'x' or ({b} >= 3 and {c} allof ['p', 'q'])"
	if got := node.String(); got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestParse_KeywordsCaseInsensitive(t *testing.T) {
	r := map[string]any{"a": "x", "b": "hello"}
	if !Evaluate("{a} == 'x' AND {b} CONTAINS 'ELL'", r) {
		t.Error("expected upper-case keywords to parse")
	}
}
