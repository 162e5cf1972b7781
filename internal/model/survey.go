package model

// ElementType enumerates the question widgets a survey page can hold.
type ElementType string

const (
	ElementDropdown      ElementType = "dropdown"
	ElementText          ElementType = "text"
	ElementRadioGroup    ElementType = "radiogroup"
	ElementMatrixDynamic ElementType = "matrixdynamic"
	ElementComment       ElementType = "comment"
	ElementMultipleText  ElementType = "multipletext"
	ElementFile          ElementType = "file"
	ElementBoolean       ElementType = "boolean"
	ElementCheckbox      ElementType = "checkbox"
)

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	switch t {
	case ElementDropdown, ElementText, ElementRadioGroup, ElementMatrixDynamic,
		ElementComment, ElementMultipleText, ElementFile, ElementBoolean, ElementCheckbox:
		return true
	}
	return false
}

// Choice is one selectable option. Text falls back to Value when empty.
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Column describes a matrixdynamic column or a multipletext item.
type Column struct {
	Name     string   `json:"name" yaml:"name"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	CellType string   `json:"cellType,omitempty" yaml:"cellType,omitempty"`
	Choices  []Choice `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// Element is a single survey question.
type Element struct {
	Name        string      `json:"name" yaml:"name"`
	Type        ElementType `json:"type" yaml:"type"`
	Title       string      `json:"title,omitempty" yaml:"title,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Placeholder string      `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Choices     []Choice    `json:"choices,omitempty" yaml:"choices,omitempty"`
	Columns     []Column    `json:"columns,omitempty" yaml:"columns,omitempty"`
	Items       []Column    `json:"items,omitempty" yaml:"items,omitempty"`
	IsRequired  bool        `json:"isRequired,omitempty" yaml:"isRequired,omitempty"`
	VisibleIf   string      `json:"visibleIf,omitempty" yaml:"visibleIf,omitempty"`
}

// Page is an ordered group of elements shown together.
type Page struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Title    string    `json:"title" yaml:"title"`
	Elements []Element `json:"elements" yaml:"elements"`
}

// SurveyDocument is the bundled questionnaire definition.
type SurveyDocument struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Pages []Page `json:"pages" yaml:"pages"`
}

// VisibleElement is an element as presented on the current page, with its
// merged answer.
type VisibleElement struct {
	Element
	Answer any `json:"answer,omitempty"`
}
