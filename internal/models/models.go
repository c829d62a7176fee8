// Package models defines the core data structures for Onboard.
//
// It includes flow definition types (sections, steps, questions), conditional
// display rules, and the answer map shared across modules.
package models

import (
	"errors"
	"fmt"
)

// QuestionType defines how a question is rendered and validated.
type QuestionType string

const (
	// QuestionTypeSingleSelection renders a single-choice option list.
	QuestionTypeSingleSelection QuestionType = "single_selection"
	// QuestionTypeMultiSelection renders a multi-choice option list.
	QuestionTypeMultiSelection QuestionType = "multi_selection"
	// QuestionTypeDetailForm renders a multi-field form.
	QuestionTypeDetailForm QuestionType = "detail_form"
	// QuestionTypeSlidingScale renders a numeric slider.
	QuestionTypeSlidingScale QuestionType = "sliding_scale"
	// QuestionTypeEmotiveScale renders an emoji-anchored scale.
	QuestionTypeEmotiveScale QuestionType = "emotive_scale"
	// QuestionTypeSignalScale renders a traffic-light style scale.
	QuestionTypeSignalScale QuestionType = "signal_scale"
	// QuestionTypeSingleSelectionWithBooleanConditional renders a single choice
	// with an attached yes/no follow-up.
	QuestionTypeSingleSelectionWithBooleanConditional QuestionType = "single_selection_with_boolean_conditional"
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeSingleSelection, QuestionTypeMultiSelection, QuestionTypeDetailForm,
		QuestionTypeSlidingScale, QuestionTypeEmotiveScale, QuestionTypeSignalScale,
		QuestionTypeSingleSelectionWithBooleanConditional:
		return true
	default:
		return false
	}
}

// Operator defines how a conditional display rule compares the expected value
// against the answer it targets.
type Operator string

const (
	// OperatorEquals matches when the answer equals the expected value.
	OperatorEquals Operator = "equals"
	// OperatorNotEquals matches when the answer differs from the expected value.
	OperatorNotEquals Operator = "not_equals"
	// OperatorIncludes matches when an array answer contains the expected value.
	OperatorIncludes Operator = "includes"
	// OperatorNotIncludes matches when an array answer does not contain the expected value.
	OperatorNotIncludes Operator = "not_includes"
)

// IsValidOperator checks if the given operator is supported.
func IsValidOperator(op Operator) bool {
	switch op {
	case OperatorEquals, OperatorNotEquals, OperatorIncludes, OperatorNotIncludes:
		return true
	default:
		return false
	}
}

// Error variables for definition validation and flow configuration.
var (
	ErrEmptyAlias          = errors.New("question alias cannot be empty")
	ErrDuplicateAlias      = errors.New("question alias already used in flow")
	ErrInvalidQuestionType = errors.New("invalid question type")
	ErrMissingProps        = errors.New("question props missing for declared type")
	ErrEmptyFieldAlias     = errors.New("form field alias cannot be empty")
	ErrDuplicateFieldAlias = errors.New("form field alias already used in form")
	ErrInvalidOperator     = errors.New("invalid conditional display operator")
	ErrEmptyRuleAlias      = errors.New("conditional display rule must target a question alias")
	ErrUnknownFlow         = errors.New("unknown flow")
	ErrFlowExists          = errors.New("flow already exists")
	ErrMissingStageMapping = errors.New("no stage mapping configured for flow")
	ErrMissingWorkflow     = errors.New("no workflow configured for role")
)

// ConditionalDisplay gates a section or step on an earlier answer.
// QuestionAlias must reference a question that precedes the owner in flow
// order; forward references are not supported by the authoring surface.
type ConditionalDisplay struct {
	QuestionAlias string      `json:"question_alias"`
	ExpectedValue interface{} `json:"expected_value"`
	Operator      Operator    `json:"operator"`
}

// Validate checks rule well-formedness.
func (c *ConditionalDisplay) Validate() error {
	if c.QuestionAlias == "" {
		return ErrEmptyRuleAlias
	}
	if !IsValidOperator(c.Operator) {
		return ErrInvalidOperator
	}
	return nil
}

// FieldType defines the input widget and format rules of a detail form field.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeEmail    FieldType = "email"
	FieldTypePhone    FieldType = "phone"
	FieldTypeSelect   FieldType = "select"
	FieldTypeURL      FieldType = "url"
	FieldTypeTextarea FieldType = "textarea"
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeText, FieldTypeNumber, FieldTypeEmail, FieldTypePhone,
		FieldTypeSelect, FieldTypeURL, FieldTypeTextarea:
		return true
	default:
		return false
	}
}

// DetailFormField is one input within a detail form question.
// Alias is the key of the field's value inside the question's answer object.
type DetailFormField struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Type           FieldType `json:"type"`
	Required       bool      `json:"required"`
	Placeholder    string    `json:"placeholder,omitempty"`
	Alias          string    `json:"alias"`
	Options        []string  `json:"options,omitempty"`
	TextareaHeight int       `json:"textarea_height,omitempty"`
	ColumnSpan     int       `json:"column_span,omitempty"` // 1 or 2
}

// SelectionProps holds variant props for single/multi selection questions.
type SelectionProps struct {
	Options       []string `json:"options"`
	MinSelections int      `json:"min_selections,omitempty"` // multi selection only, 0 = unset
	MaxSelections int      `json:"max_selections,omitempty"` // multi selection only, 0 = unset
	// ConditionalLabel is the yes/no follow-up text for the boolean conditional variant.
	ConditionalLabel string `json:"conditional_label,omitempty"`
}

// ScaleProps holds variant props for sliding, emotive and signal scales.
type ScaleProps struct {
	Min    int      `json:"min"`
	Max    int      `json:"max"`
	Labels []string `json:"labels,omitempty"`
}

// DetailFormProps holds variant props for detail form questions.
type DetailFormProps struct {
	Fields []DetailFormField `json:"fields"`
}

// Question is a single prompt within a step. Exactly one of the variant
// payloads matching Type is set (tagged union). Alias is the key of the
// question's value in the answer map and must be unique across the flow.
type Question struct {
	Type      QuestionType     `json:"type"`
	Alias     string           `json:"alias"`
	Editable  bool             `json:"editable"`
	Required  bool             `json:"required"`
	Selection *SelectionProps  `json:"selection,omitempty"`
	Scale     *ScaleProps      `json:"scale,omitempty"`
	Form      *DetailFormProps `json:"form,omitempty"`
}

// Validate checks that the question carries the payload its type requires and
// that form field aliases are unique within the form.
func (q *Question) Validate() error {
	if q.Alias == "" {
		return ErrEmptyAlias
	}
	if !IsValidQuestionType(q.Type) {
		return ErrInvalidQuestionType
	}
	switch q.Type {
	case QuestionTypeSingleSelection, QuestionTypeMultiSelection, QuestionTypeSingleSelectionWithBooleanConditional:
		if q.Selection == nil {
			return fmt.Errorf("question %s: %w", q.Alias, ErrMissingProps)
		}
	case QuestionTypeSlidingScale, QuestionTypeEmotiveScale, QuestionTypeSignalScale:
		if q.Scale == nil {
			return fmt.Errorf("question %s: %w", q.Alias, ErrMissingProps)
		}
	case QuestionTypeDetailForm:
		if q.Form == nil {
			return fmt.Errorf("question %s: %w", q.Alias, ErrMissingProps)
		}
		seen := make(map[string]bool, len(q.Form.Fields))
		for _, f := range q.Form.Fields {
			if f.Alias == "" {
				return fmt.Errorf("question %s: %w", q.Alias, ErrEmptyFieldAlias)
			}
			if seen[f.Alias] {
				return fmt.Errorf("question %s field %s: %w", q.Alias, f.Alias, ErrDuplicateFieldAlias)
			}
			seen[f.Alias] = true
		}
	}
	if q.Selection != nil && q.Selection.ConditionalLabel != "" && q.Type != QuestionTypeSingleSelectionWithBooleanConditional {
		return fmt.Errorf("question %s: conditional label requires boolean conditional type", q.Alias)
	}
	return nil
}

// Step is an ordered group of questions within a section.
type Step struct {
	ID                 string              `json:"id"`
	Order              int                 `json:"order"`
	Questions          []Question          `json:"questions"`
	ConditionalDisplay *ConditionalDisplay `json:"conditional_display,omitempty"`
}

// Section is an ordered group of steps. Sections are sorted ascending by
// Order once at load time; the order is otherwise stable for the session.
type Section struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Color              string              `json:"color,omitempty"`
	Steps              []Step              `json:"steps"`
	Order              int                 `json:"order,omitempty"`
	ConditionalDisplay *ConditionalDisplay `json:"conditional_display,omitempty"`
}

// DisplayRule returns the step's conditional display rule, or nil.
func (s Step) DisplayRule() *ConditionalDisplay {
	return s.ConditionalDisplay
}

// DisplayRule returns the section's conditional display rule, or nil.
func (s Section) DisplayRule() *ConditionalDisplay {
	return s.ConditionalDisplay
}

// AnswerMap maps question alias (or form field alias inside a question's
// object value) to the answered value. It is flat across the whole flow and
// is the single source of truth for validation and visibility.
type AnswerMap map[string]interface{}

// Clone returns a shallow copy of the answer map.
func (a AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ValidationResult is the structured outcome of validating a value.
// Failures are expected outcomes surfaced to the user, never errors.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Valid returns a passing validation result.
func ValidResult() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failing validation result with a human-readable reason.
func InvalidResult(reason string) ValidationResult {
	return ValidationResult{Valid: false, Error: reason}
}

// ValidateFlowDefinition checks cross-cutting invariants over a loaded flow:
// question aliases unique across the entire flow, per-question payload
// validity, and well-formed conditional rules.
func ValidateFlowDefinition(sections []Section) error {
	seen := make(map[string]bool)
	for _, sec := range sections {
		if sec.ConditionalDisplay != nil {
			if err := sec.ConditionalDisplay.Validate(); err != nil {
				return fmt.Errorf("section %s: %w", sec.ID, err)
			}
		}
		for _, st := range sec.Steps {
			if st.ConditionalDisplay != nil {
				if err := st.ConditionalDisplay.Validate(); err != nil {
					return fmt.Errorf("section %s step %s: %w", sec.ID, st.ID, err)
				}
			}
			for i := range st.Questions {
				q := &st.Questions[i]
				if err := q.Validate(); err != nil {
					return err
				}
				if seen[q.Alias] {
					return fmt.Errorf("question %s: %w", q.Alias, ErrDuplicateAlias)
				}
				seen[q.Alias] = true
			}
		}
	}
	return nil
}
