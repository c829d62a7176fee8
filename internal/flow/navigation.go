// Package flow implements the conditional flow and stage progression engine.
//
// This file owns the navigation position state machine. Visibility is
// recomputed from the live answer map on every transition, so answering a
// question can retroactively hide or reveal sections already passed.
package flow

import (
	"log/slog"

	"github.com/entrylane/onboard/internal/models"
)

// Navigator tracks the current section/step position within a flow.
// Step and section indexes always refer to the original definition arrays;
// visible steps are a filtered view, never a renumbering.
type Navigator struct {
	sections []models.Section
	answers  func() models.AnswerMap

	sectionIndex int
	stepIndex    int
	recap        bool
	complete     bool
}

// NewNavigator creates a navigator positioned at the start of the flow.
// The answers function supplies the live answer map for visibility checks.
func NewNavigator(sections []models.Section, answers func() models.AnswerMap) *Navigator {
	return &Navigator{sections: sections, answers: answers}
}

// Position returns the current (sectionIndex, stepIndex) pair.
func (n *Navigator) Position() (int, int) {
	return n.sectionIndex, n.stepIndex
}

// InRecap reports whether the navigator is in the terminal review state.
func (n *Navigator) InRecap() bool {
	return n.recap
}

// IsComplete reports whether the flow was explicitly submitted.
func (n *Navigator) IsComplete() bool {
	return n.complete
}

// MarkComplete flags the flow as submitted. Completion is only reachable
// through explicit submission, never through navigation alone.
func (n *Navigator) MarkComplete() {
	n.complete = true
}

// visibleStepIndexes returns original indexes of the section's steps whose
// display rule currently evaluates true, in original order.
func (n *Navigator) visibleStepIndexes(sec models.Section, answers models.AnswerMap) []int {
	var out []int
	for i, step := range sec.Steps {
		if Visible(step, answers) {
			out = append(out, i)
		}
	}
	return out
}

// visibleSectionIndexes returns original indexes of currently visible sections.
func (n *Navigator) visibleSectionIndexes(answers models.AnswerMap) []int {
	var out []int
	for i, sec := range n.sections {
		if Visible(sec, answers) {
			out = append(out, i)
		}
	}
	return out
}

// Advance moves forward one visible step, crossing into the next visible
// section when the current section's visible steps are exhausted. With no
// next visible section it enters the recap state.
func (n *Navigator) Advance() {
	if n.recap {
		return
	}
	answers := n.answers()

	if n.sectionIndex < len(n.sections) {
		steps := n.visibleStepIndexes(n.sections[n.sectionIndex], answers)
		for _, idx := range steps {
			if idx > n.stepIndex {
				n.stepIndex = idx
				slog.Debug("Navigator advanced step", "section", n.sectionIndex, "step", n.stepIndex)
				return
			}
		}
	}

	for _, idx := range n.visibleSectionIndexes(answers) {
		if idx > n.sectionIndex {
			n.sectionIndex = idx
			n.stepIndex = 0
			slog.Debug("Navigator advanced section", "section", n.sectionIndex)
			return
		}
	}

	n.recap = true
	slog.Info("Navigator entered recap", "section", n.sectionIndex, "step", n.stepIndex)
}

// Retreat moves back one visible step. Leaving the first visible step of a
// section lands on the last visible step of the previous visible section.
// Retreating out of recap restores the position recap was entered from.
func (n *Navigator) Retreat() {
	if n.recap {
		n.recap = false
		slog.Debug("Navigator left recap", "section", n.sectionIndex, "step", n.stepIndex)
		return
	}
	answers := n.answers()

	if n.sectionIndex < len(n.sections) {
		steps := n.visibleStepIndexes(n.sections[n.sectionIndex], answers)
		for i := len(steps) - 1; i >= 0; i-- {
			if steps[i] < n.stepIndex {
				n.stepIndex = steps[i]
				slog.Debug("Navigator retreated step", "section", n.sectionIndex, "step", n.stepIndex)
				return
			}
		}
	}

	visible := n.visibleSectionIndexes(answers)
	for i := len(visible) - 1; i >= 0; i-- {
		if visible[i] < n.sectionIndex {
			n.sectionIndex = visible[i]
			n.stepIndex = 0
			if steps := n.visibleStepIndexes(n.sections[n.sectionIndex], answers); len(steps) > 0 {
				n.stepIndex = steps[len(steps)-1]
			}
			slog.Debug("Navigator retreated section", "section", n.sectionIndex, "step", n.stepIndex)
			return
		}
	}
	// Already at the first visible step of the first visible section.
}
