// Package flow implements the conditional flow and stage progression engine.
//
// This file validates answers at question, step and section granularity.
// Failures are structured results surfaced to the user, never errors.
package flow

import (
	"fmt"
	"regexp"

	"github.com/entrylane/onboard/internal/models"
)

// Format patterns for detail form field values. Phone numbers are
// "+<country> <subscriber>" with a 1-3 digit country code, 4-14 digit
// subscriber number and an optional x<extension> suffix.
var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	urlPattern   = regexp.MustCompile(`^(https?://)?([A-Za-z0-9\-]+\.)+[A-Za-z]{2,}(:\d+)?(/\S*)?$`)
	phonePattern = regexp.MustCompile(`^\+\d{1,3} \d{4,14}(x\d+)?$`)
)

// ValidateQuestionValue validates a candidate value against a question
// definition. A non-required question with an empty value is always valid.
func ValidateQuestionValue(q models.Question, value interface{}) models.ValidationResult {
	if !q.Required && isEmpty(value) {
		return models.ValidResult()
	}

	switch q.Type {
	case models.QuestionTypeSingleSelection, models.QuestionTypeSingleSelectionWithBooleanConditional:
		if q.Required {
			s, ok := value.(string)
			if !ok || s == "" {
				return models.InvalidResult("Please select an option")
			}
		}

	case models.QuestionTypeMultiSelection:
		items, _ := asSlice(value)
		if q.Required && len(items) == 0 {
			return models.InvalidResult("Please select at least one option")
		}
		// Selection count bounds apply regardless of the required flag.
		if q.Selection != nil {
			if min := q.Selection.MinSelections; min > 0 && len(items) < min {
				return models.InvalidResult(fmt.Sprintf("Please select at least %d options", min))
			}
			if max := q.Selection.MaxSelections; max > 0 && len(items) > max {
				return models.InvalidResult(fmt.Sprintf("Please select at most %d options", max))
			}
		}

	case models.QuestionTypeSlidingScale, models.QuestionTypeEmotiveScale, models.QuestionTypeSignalScale:
		// Zero is a valid scale value; only a missing value fails.
		if q.Required && value == nil {
			return models.InvalidResult("Please select a value")
		}

	case models.QuestionTypeDetailForm:
		obj, ok := asAnswerObject(value)
		if q.Required && !ok {
			return models.InvalidResult("Please fill in the form")
		}
		if q.Form != nil && ok {
			for _, field := range q.Form.Fields {
				if res := validateFormField(field, obj); !res.Valid {
					return res
				}
			}
		}
	}

	return models.ValidResult()
}

// validateFormField checks one detail form field against the form's answer
// object. Present values are format-checked regardless of the required flag.
func validateFormField(field models.DetailFormField, obj map[string]interface{}) models.ValidationResult {
	value, present := obj[field.Alias]
	if field.Required && (!present || isEmpty(value)) {
		return models.InvalidResult(fmt.Sprintf("%s is required", fieldLabel(field)))
	}
	if !present || isEmpty(value) {
		return models.ValidResult()
	}

	s, isStr := value.(string)
	switch field.Type {
	case models.FieldTypeEmail:
		if !isStr || !emailPattern.MatchString(s) {
			return models.InvalidResult(fmt.Sprintf("Please enter a valid email address for %s", fieldLabel(field)))
		}
	case models.FieldTypeURL:
		if !isStr || !urlPattern.MatchString(s) {
			return models.InvalidResult(fmt.Sprintf("Please enter a valid URL for %s", fieldLabel(field)))
		}
	case models.FieldTypePhone:
		if !isStr || !phonePattern.MatchString(s) {
			return models.InvalidResult(fmt.Sprintf("Please enter a valid phone number for %s", fieldLabel(field)))
		}
	}
	return models.ValidResult()
}

// fieldLabel names a field in user-facing messages: its label, or alias when
// no label is set.
func fieldLabel(field models.DetailFormField) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Alias
}

// ValidateStep validates each question of a step in order, returning the
// first failure.
func ValidateStep(questions []models.Question, answers models.AnswerMap) models.ValidationResult {
	for _, q := range questions {
		if res := ValidateQuestionValue(q, answers[q.Alias]); !res.Valid {
			return res
		}
	}
	return models.ValidResult()
}

// ValidateSection validates each step of a section in order. On failure the
// returned index identifies the originating step; it is -1 on success.
func ValidateSection(steps []models.Step, answers models.AnswerMap) (models.ValidationResult, int) {
	for i, step := range steps {
		if res := ValidateStep(step.Questions, answers); !res.Valid {
			return res, i
		}
	}
	return models.ValidResult(), -1
}

// isEmpty reports whether a value counts as unanswered: nil, empty string,
// empty array or empty object. Zero numbers are answered values.
func isEmpty(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []interface{}:
		return len(value) == 0
	case []string:
		return len(value) == 0
	case map[string]interface{}:
		return len(value) == 0
	case models.AnswerMap:
		return len(value) == 0
	default:
		return false
	}
}

// asAnswerObject converts a detail form answer to a map, accepting both the
// JSON-decoded and the typed form.
func asAnswerObject(v interface{}) (map[string]interface{}, bool) {
	switch obj := v.(type) {
	case map[string]interface{}:
		return obj, true
	case models.AnswerMap:
		return obj, true
	default:
		return nil, false
	}
}
