// Package survey loads the diagnostic questionnaire and answers questions
// about it: which page a field lives on and which elements are visible for a
// given response map.
package survey

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/condition"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed default_schema.json
var defaultSchema []byte

// Schema validation errors.
var (
	ErrNoPages       = errors.New("survey has no pages")
	ErrDuplicateName = errors.New("duplicate element name")
	ErrUnknownType   = errors.New("unknown element type")
	ErrMissingName   = errors.New("element name is required")
)

// Schema is an immutable, validated survey with compiled visibility rules.
type Schema struct {
	doc        model.SurveyDocument
	conditions map[string]condition.Condition
	pageOf     map[string]int
}

// Load reads the schema at path, or the bundled schema when path is empty.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string, log zerolog.Logger) (*Schema, error) {
	if path == "" {
		return Parse(defaultSchema, "json", log)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Parse(data, format, log)
}

// Parse decodes and validates a schema document.
func Parse(data []byte, format string, log zerolog.Logger) (*Schema, error) {
	var doc model.SurveyDocument
	var err error
	if format == "yaml" {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return New(doc, log)
}

// New validates doc and compiles every visibleIf expression once.
func New(doc model.SurveyDocument, log zerolog.Logger) (*Schema, error) {
	if len(doc.Pages) == 0 {
		return nil, ErrNoPages
	}

	s := &Schema{
		doc:        doc,
		conditions: make(map[string]condition.Condition),
		pageOf:     make(map[string]int),
	}

	for i, page := range doc.Pages {
		for _, el := range page.Elements {
			if el.Name == "" {
				return nil, fmt.Errorf("page %d: %w", i, ErrMissingName)
			}
			if !el.Type.Valid() {
				return nil, fmt.Errorf("%s: %w: %q", el.Name, ErrUnknownType, el.Type)
			}
			if _, dup := s.pageOf[el.Name]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateName, el.Name)
			}
			s.pageOf[el.Name] = i

			if el.VisibleIf == "" {
				continue
			}
			cond := condition.Compile(el.VisibleIf)
			if cond.Err() != nil {
				// Unparseable rules stay visible.
				log.Warn().
					Err(cond.Err()).
					Str("element", el.Name).
					Str("visible_if", cond.Source()).
					Msg("visibleIf does not parse, element always visible")
			}
			s.conditions[el.Name] = cond
		}
	}

	// A rule on an undefined field never sees an answer.
	for name, cond := range s.conditions {
		for _, field := range cond.Fields() {
			if _, ok := s.pageOf[field]; !ok {
				log.Warn().
					Str("element", name).
					Str("field", field).
					Str("visible_if", cond.Source()).
					Msg("visibleIf reads a field the survey does not define")
			}
		}
	}

	return s, nil
}

// Document returns the decoded survey.
func (s *Schema) Document() model.SurveyDocument { return s.doc }

// PageCount returns the number of pages.
func (s *Schema) PageCount() int { return len(s.doc.Pages) }

// Page returns the page at index i.
func (s *Schema) Page(i int) (model.Page, bool) {
	if i < 0 || i >= len(s.doc.Pages) {
		return model.Page{}, false
	}
	return s.doc.Pages[i], true
}

// HasField reports whether name is an element of the survey.
func (s *Schema) HasField(name string) bool {
	_, ok := s.pageOf[name]
	return ok
}

// PageOf returns the index of the page holding name.
func (s *Schema) PageOf(name string) (int, bool) {
	i, ok := s.pageOf[name]
	return i, ok
}

// IsVisible evaluates the element's visibleIf against responses.
func (s *Schema) IsVisible(name string, responses map[string]any) bool {
	cond, ok := s.conditions[name]
	if !ok {
		return true
	}
	return cond.Eval(responses)
}

// VisibleElements returns the elements of page i shown for responses.
func (s *Schema) VisibleElements(i int, responses map[string]any) []model.Element {
	page, ok := s.Page(i)
	if !ok {
		return nil
	}
	out := make([]model.Element, 0, len(page.Elements))
	for _, el := range page.Elements {
		if s.IsVisible(el.Name, responses) {
			out = append(out, el)
		}
	}
	return out
}

// PageAnswers extracts from responses the answers of the visible elements on
// page i. Hidden elements and unanswered fields are left out.
func (s *Schema) PageAnswers(i int, responses map[string]any) map[string]any {
	out := make(map[string]any)
	for _, el := range s.VisibleElements(i, responses) {
		if v, ok := responses[el.Name]; ok {
			out[el.Name] = v
		}
	}
	return out
}
