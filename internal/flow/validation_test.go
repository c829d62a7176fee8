package flow

import (
	"testing"

	"github.com/entrylane/onboard/internal/models"
)

func multiSelect(alias string, required bool, min, max int) models.Question {
	return models.Question{
		Type:     models.QuestionTypeMultiSelection,
		Alias:    alias,
		Required: required,
		Selection: &models.SelectionProps{
			Options:       []string{"a", "b", "c", "d"},
			MinSelections: min,
			MaxSelections: max,
		},
	}
}

func TestValidateQuestionValue_NonRequiredEmptyIsValid(t *testing.T) {
	questions := []models.Question{
		{Type: models.QuestionTypeSingleSelection, Alias: "q1", Selection: &models.SelectionProps{Options: []string{"a"}}},
		{Type: models.QuestionTypeMultiSelection, Alias: "q2", Selection: &models.SelectionProps{Options: []string{"a"}}},
		{Type: models.QuestionTypeSlidingScale, Alias: "q3", Scale: &models.ScaleProps{Min: 0, Max: 10}},
		{Type: models.QuestionTypeDetailForm, Alias: "q4", Form: &models.DetailFormProps{}},
	}
	for _, q := range questions {
		if res := ValidateQuestionValue(q, nil); !res.Valid {
			t.Errorf("non-required %s with nil value should be valid; got %q", q.Type, res.Error)
		}
	}
}

func TestValidateQuestionValue_SingleSelectionRequired(t *testing.T) {
	q := models.Question{
		Type:      models.QuestionTypeSingleSelection,
		Alias:     "q1",
		Required:  true,
		Selection: &models.SelectionProps{Options: []string{"a", "b"}},
	}
	if res := ValidateQuestionValue(q, nil); res.Valid || res.Error != "Please select an option" {
		t.Errorf("missing required selection: got (%v, %q)", res.Valid, res.Error)
	}
	if res := ValidateQuestionValue(q, "a"); !res.Valid {
		t.Errorf("answered required selection should be valid; got %q", res.Error)
	}
}

func TestValidateQuestionValue_MultiSelectionBounds(t *testing.T) {
	q := multiSelect("q1", true, 2, 3)

	res := ValidateQuestionValue(q, []interface{}{})
	if res.Valid || res.Error != "Please select at least one option" {
		t.Errorf("empty required multi selection: got (%v, %q)", res.Valid, res.Error)
	}

	res = ValidateQuestionValue(q, []interface{}{"a"})
	if res.Valid || res.Error != "Please select at least 2 options" {
		t.Errorf("below minimum: got (%v, %q)", res.Valid, res.Error)
	}

	res = ValidateQuestionValue(q, []interface{}{"a", "b", "c", "d"})
	if res.Valid || res.Error != "Please select at most 3 options" {
		t.Errorf("above maximum: got (%v, %q)", res.Valid, res.Error)
	}

	if res = ValidateQuestionValue(q, []interface{}{"a", "b"}); !res.Valid {
		t.Errorf("within bounds should be valid; got %q", res.Error)
	}
}

func TestValidateQuestionValue_MultiSelectionBoundsApplyWhenOptional(t *testing.T) {
	// Selection bounds are enforced even when the question is not required,
	// as long as something was selected.
	q := multiSelect("q1", false, 2, 0)
	if res := ValidateQuestionValue(q, nil); !res.Valid {
		t.Errorf("empty optional multi selection should be valid; got %q", res.Error)
	}
	res := ValidateQuestionValue(q, []interface{}{"a"})
	if res.Valid || res.Error != "Please select at least 2 options" {
		t.Errorf("optional below minimum: got (%v, %q)", res.Valid, res.Error)
	}
}

func TestValidateQuestionValue_ScaleZeroIsAnswered(t *testing.T) {
	q := models.Question{
		Type:     models.QuestionTypeEmotiveScale,
		Alias:    "mood",
		Required: true,
		Scale:    &models.ScaleProps{Min: 0, Max: 5},
	}
	if res := ValidateQuestionValue(q, nil); res.Valid || res.Error != "Please select a value" {
		t.Errorf("missing required scale: got (%v, %q)", res.Valid, res.Error)
	}
	if res := ValidateQuestionValue(q, 0); !res.Valid {
		t.Errorf("zero is a valid scale value; got %q", res.Error)
	}
}

func TestValidateQuestionValue_DetailFormFields(t *testing.T) {
	q := models.Question{
		Type:     models.QuestionTypeDetailForm,
		Alias:    "contact",
		Required: true,
		Form: &models.DetailFormProps{Fields: []models.DetailFormField{
			{Alias: "work_email", Label: "Work Email", Type: models.FieldTypeEmail, Required: true},
			{Alias: "website", Label: "Website", Type: models.FieldTypeURL},
			{Alias: "phone", Label: "Phone", Type: models.FieldTypePhone},
		}},
	}

	res := ValidateQuestionValue(q, nil)
	if res.Valid || res.Error != "Please fill in the form" {
		t.Errorf("missing required form: got (%v, %q)", res.Valid, res.Error)
	}

	res = ValidateQuestionValue(q, map[string]interface{}{"work_email": "not-an-email"})
	if res.Valid || res.Error != "Please enter a valid email address for Work Email" {
		t.Errorf("bad email: got (%v, %q)", res.Valid, res.Error)
	}

	res = ValidateQuestionValue(q, map[string]interface{}{})
	if res.Valid || res.Error != "Work Email is required" {
		t.Errorf("missing required field: got (%v, %q)", res.Valid, res.Error)
	}

	// Optional fields are format-checked only when present.
	res = ValidateQuestionValue(q, map[string]interface{}{
		"work_email": "dev@example.com",
		"website":    "not a url",
	})
	if res.Valid || res.Error != "Please enter a valid URL for Website" {
		t.Errorf("bad url: got (%v, %q)", res.Valid, res.Error)
	}

	res = ValidateQuestionValue(q, map[string]interface{}{
		"work_email": "dev@example.com",
		"website":    "https://example.com/path",
		"phone":      "+1 5551234567",
	})
	if !res.Valid {
		t.Errorf("fully valid form rejected: %q", res.Error)
	}
}

func TestValidateQuestionValue_PhoneFormats(t *testing.T) {
	q := models.Question{
		Type:  models.QuestionTypeDetailForm,
		Alias: "contact",
		Form: &models.DetailFormProps{Fields: []models.DetailFormField{
			{Alias: "phone", Label: "Phone", Type: models.FieldTypePhone},
		}},
	}
	valid := []string{"+1 5551234", "+353 861234567", "+44 7911123456x12"}
	for _, v := range valid {
		if res := ValidateQuestionValue(q, map[string]interface{}{"phone": v}); !res.Valid {
			t.Errorf("phone %q should be valid; got %q", v, res.Error)
		}
	}
	invalid := []string{"5551234", "+1-5551234", "+1 123", "+12345 5551234"}
	for _, v := range invalid {
		if res := ValidateQuestionValue(q, map[string]interface{}{"phone": v}); res.Valid {
			t.Errorf("phone %q should be invalid", v)
		}
	}
}

func TestValidateStep_FirstFailureWins(t *testing.T) {
	questions := []models.Question{
		multiSelect("first", true, 2, 0),
		{Type: models.QuestionTypeSingleSelection, Alias: "second", Required: true, Selection: &models.SelectionProps{Options: []string{"a"}}},
	}
	answers := models.AnswerMap{"first": []interface{}{"a"}}
	res := ValidateStep(questions, answers)
	if res.Valid || res.Error != "Please select at least 2 options" {
		t.Errorf("expected first question's failure; got (%v, %q)", res.Valid, res.Error)
	}
}

func TestValidateSection_ReportsStepIndex(t *testing.T) {
	steps := []models.Step{
		{ID: "st1", Questions: []models.Question{
			{Type: models.QuestionTypeSingleSelection, Alias: "q1", Selection: &models.SelectionProps{Options: []string{"a"}}},
		}},
		{ID: "st2", Questions: []models.Question{
			{Type: models.QuestionTypeSingleSelection, Alias: "q2", Required: true, Selection: &models.SelectionProps{Options: []string{"a"}}},
		}},
	}
	res, idx := ValidateSection(steps, models.AnswerMap{})
	if res.Valid || idx != 1 {
		t.Errorf("expected failure at step 1; got (%v, %d)", res.Valid, idx)
	}

	res, idx = ValidateSection(steps, models.AnswerMap{"q2": "a"})
	if !res.Valid || idx != -1 {
		t.Errorf("expected success with index -1; got (%v, %d)", res.Valid, idx)
	}
}
