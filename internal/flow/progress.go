// Package flow implements the conditional flow and stage progression engine.
//
// This file derives a completion percentage from the live visibility state.
package flow

import "github.com/entrylane/onboard/internal/models"

// Progress returns a 0-100 completion percentage for the given position.
// Total counts visible steps across visible sections; completed counts all
// visible steps of sections before the current one plus the visible steps of
// the current section up to and including the current step. Both sides are
// recomputed from the same live answers, so answers that hide previously
// counted steps can move the percentage backwards; that is accepted
// behavior, not a bug.
func Progress(sections []models.Section, answers models.AnswerMap, sectionIndex, stepIndex int) int {
	total := 0
	completed := 0
	for si, sec := range sections {
		if !Visible(sec, answers) {
			continue
		}
		visibleSteps := 0
		completedHere := 0
		for idx, step := range sec.Steps {
			if !Visible(step, answers) {
				continue
			}
			visibleSteps++
			if si < sectionIndex || (si == sectionIndex && idx <= stepIndex) {
				completedHere++
			}
		}
		total += visibleSteps
		if si <= sectionIndex {
			completed += completedHere
		}
	}
	if total == 0 {
		return 0
	}
	percent := completed * 100 / total
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// ProgressPercent reports progress for the navigator's current position.
// The recap state counts as fully complete.
func (n *Navigator) ProgressPercent() int {
	if n.recap || n.complete {
		return 100
	}
	return Progress(n.sections, n.answers(), n.sectionIndex, n.stepIndex)
}
