package survey

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/model"
)

func twoPageDoc() model.SurveyDocument {
	return model.SurveyDocument{
		Pages: []model.Page{
			{Title: "One", Elements: []model.Element{
				{Name: "a", Type: model.ElementBoolean},
			}},
			{Title: "Two", Elements: []model.Element{
				{Name: "b", Type: model.ElementText, VisibleIf: "{a} == 'Yes'"},
			}},
		},
	}
}

func TestLoad_BundledSchema(t *testing.T) {
	s, err := Load("", zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.PageCount() < 2 {
		t.Fatalf("PageCount: got %d, want at least 2", s.PageCount())
	}
	if !s.HasField("company_name") {
		t.Error("expected company_name in bundled schema")
	}
	for name, cond := range s.conditions {
		if cond.Err() != nil {
			t.Errorf("bundled visibleIf for %s does not parse: %v", name, cond.Err())
		}
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	doc := `
title: Mini
pages:
  - title: Start
    elements:
      - name: stage
        type: radiogroup
        choices:
          - value: idea
          - value: growth
      - name: funding
        type: text
        visibleIf: "{stage} == 'growth'"
`
	path := filepath.Join(t.TempDir(), "survey.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Document().Title; got != "Mini" {
		t.Errorf("Title: got %q, want %q", got, "Mini")
	}
	if s.IsVisible("funding", map[string]any{"stage": "idea"}) {
		t.Error("funding should be hidden for idea stage")
	}
	if !s.IsVisible("funding", map[string]any{"stage": "growth"}) {
		t.Error("funding should be visible for growth stage")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(model.SurveyDocument{}, zerolog.Nop()); !errors.Is(err, ErrNoPages) {
		t.Errorf("empty doc: got %v, want ErrNoPages", err)
	}

	dup := twoPageDoc()
	dup.Pages[1].Elements = append(dup.Pages[1].Elements, model.Element{Name: "a", Type: model.ElementText})
	if _, err := New(dup, zerolog.Nop()); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate: got %v, want ErrDuplicateName", err)
	}

	bad := twoPageDoc()
	bad.Pages[0].Elements[0].Type = "slider"
	if _, err := New(bad, zerolog.Nop()); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type: got %v, want ErrUnknownType", err)
	}

	unnamed := twoPageDoc()
	unnamed.Pages[0].Elements[0].Name = ""
	if _, err := New(unnamed, zerolog.Nop()); !errors.Is(err, ErrMissingName) {
		t.Errorf("unnamed: got %v, want ErrMissingName", err)
	}
}

func TestSchema_VisibilityToggleKeepsAnswer(t *testing.T) {
	s, err := New(twoPageDoc(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	responses := map[string]any{"a": true, "b": "kept"}
	if got := len(s.VisibleElements(1, responses)); got != 1 {
		t.Fatalf("visible with a=true: got %d, want 1", got)
	}

	responses["a"] = false
	if got := len(s.VisibleElements(1, responses)); got != 0 {
		t.Fatalf("visible with a=false: got %d, want 0", got)
	}
	if responses["b"] != "kept" {
		t.Errorf("hidden answer changed: got %v", responses["b"])
	}
	if answers := s.PageAnswers(1, responses); len(answers) != 0 {
		t.Errorf("PageAnswers for hidden page: got %v, want empty", answers)
	}
}

func TestSchema_PageAnswersOnlyCurrentPage(t *testing.T) {
	s, err := New(twoPageDoc(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	responses := map[string]any{"a": true, "b": "text"}
	first := s.PageAnswers(0, responses)
	if len(first) != 1 || first["a"] != true {
		t.Errorf("page 0 answers: got %v, want only a", first)
	}
	second := s.PageAnswers(1, responses)
	if len(second) != 1 || second["b"] != "text" {
		t.Errorf("page 1 answers: got %v, want only b", second)
	}
	if i, ok := s.PageOf("b"); !ok || i != 1 {
		t.Errorf("PageOf(b): got %d,%v want 1,true", i, ok)
	}
	if _, ok := s.Page(5); ok {
		t.Error("Page(5) should not exist")
	}
}

func TestNew_WarnsOnUndefinedConditionField(t *testing.T) {
	var buf bytes.Buffer
	doc := twoPageDoc()
	doc.Pages[1].Elements = append(doc.Pages[1].Elements,
		model.Element{Name: "c", Type: model.ElementText, VisibleIf: "{ghost} notempty"},
		model.Element{Name: "d", Type: model.ElementText, VisibleIf: "{a} ~= 1"},
	)

	if _, err := New(doc, zerolog.New(&buf)); err != nil {
		t.Fatalf("New: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"field":"ghost"`) || !strings.Contains(out, "does not define") {
		t.Errorf("log: got %s, want a warning for field ghost", out)
	}
	if !strings.Contains(out, `"visible_if":"{a} ~= 1"`) {
		t.Errorf("log: got %s, want the unparseable source logged", out)
	}
	if strings.Contains(out, `"field":"a"`) {
		t.Errorf("log: defined field a reported: %s", out)
	}
}
