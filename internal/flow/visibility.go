// Package flow implements the conditional flow and stage progression engine.
//
// This file evaluates conditional display rules against the live answer map.
// The same evaluation serves section-level and step-level rules.
package flow

import (
	"reflect"
	"strings"

	"github.com/entrylane/onboard/internal/models"
)

// Conditioned is any flow entity gated by an optional display rule.
// Sections and steps both satisfy it.
type Conditioned interface {
	DisplayRule() *models.ConditionalDisplay
}

// Visible reports whether the owner should currently be shown.
func Visible(owner Conditioned, answers models.AnswerMap) bool {
	return Evaluate(owner.DisplayRule(), answers)
}

// Evaluate applies a conditional display rule to the answer map.
// No rule means always visible.
//
// Missing answers satisfy only the not_equals operator. In particular
// not_includes against a missing answer is false, not true; callers must not
// assume symmetry between includes and not_includes here.
func Evaluate(rule *models.ConditionalDisplay, answers models.AnswerMap) bool {
	if rule == nil {
		return true
	}
	actual := answers[rule.QuestionAlias]
	expected := rule.ExpectedValue

	// String-to-string comparisons for equals/not_equals are case- and
	// whitespace-insensitive. includes/not_includes on a string answer fall
	// through to the array rules below.
	if expectedStr, ok := expected.(string); ok {
		if actualStr, ok := actual.(string); ok {
			switch rule.Operator {
			case models.OperatorEquals:
				return normalize(actualStr) == normalize(expectedStr)
			case models.OperatorNotEquals:
				return normalize(actualStr) != normalize(expectedStr)
			}
		}
	}

	if actual == nil {
		return rule.Operator == models.OperatorNotEquals
	}

	switch rule.Operator {
	case models.OperatorEquals:
		return strictEqual(actual, expected)
	case models.OperatorNotEquals:
		return !strictEqual(actual, expected)
	case models.OperatorIncludes:
		return answerContains(actual, expected)
	case models.OperatorNotIncludes:
		return !answerContains(actual, expected)
	}
	return false
}

// normalize trims and lowercases a string for loose comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// strictEqual compares raw values. Values of non-comparable kinds (slices,
// maps) are never equal under strict comparison.
func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if !ta.Comparable() || !tb.Comparable() {
		return false
	}
	return a == b
}

// answerContains reports whether the array answer contains the expected
// value. String elements are compared case-insensitively against a string
// expected value; other element types use strict equality. A non-array
// answer contains nothing.
func answerContains(actual, expected interface{}) bool {
	items, ok := asSlice(actual)
	if !ok {
		return false
	}
	expectedStr, expectedIsStr := expected.(string)
	for _, item := range items {
		if itemStr, ok := item.(string); ok && expectedIsStr {
			if normalize(itemStr) == normalize(expectedStr) {
				return true
			}
			continue
		}
		if strictEqual(item, expected) {
			return true
		}
	}
	return false
}

// asSlice converts the common answer array shapes to []interface{}.
func asSlice(v interface{}) ([]interface{}, bool) {
	switch items := v.(type) {
	case []interface{}:
		return items, true
	case []string:
		out := make([]interface{}, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
