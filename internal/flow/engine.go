// Package flow implements the conditional flow and stage progression engine.
//
// This file ties the session-scoped pieces together. An Engine is built per
// session and flow selection; switching flows discards it. There is no
// shared module-level state.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

// Engine drives one user's session through one flow: answers, visibility,
// navigation, progress and submission.
type Engine struct {
	userID  string
	flow    string
	editing bool

	sections  []models.Section
	questions map[string]models.Question
	answers   *AnswerStore
	nav       *Navigator
	orch      *StageOrchestrator
}

// NewEngine loads the flow definition and any persisted answers and builds a
// session engine. Editing mode opens an already-submitted record: answer
// writes persist data only and submission does not advance the workflow.
func NewEngine(defs *DefinitionStore, st store.Store, orch *StageOrchestrator, userID, flowName string, editing bool) (*Engine, error) {
	slog.Debug("Creating Engine", "userID", userID, "flow", flowName, "editing", editing)

	sections, err := defs.FetchSections(flowName)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow definition: %w", err)
	}
	if err := models.ValidateFlowDefinition(sections); err != nil {
		return nil, fmt.Errorf("flow definition invalid: %w", err)
	}

	answers, err := NewAnswerStore(st, userID, flowName, editing)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		userID:    userID,
		flow:      flowName,
		editing:   editing,
		sections:  sections,
		questions: indexQuestions(sections),
		answers:   answers,
		orch:      orch,
	}
	e.nav = NewNavigator(sections, answers.Values)
	return e, nil
}

func indexQuestions(sections []models.Section) map[string]models.Question {
	out := make(map[string]models.Question)
	for _, sec := range sections {
		for _, step := range sec.Steps {
			for _, q := range step.Questions {
				out[q.Alias] = q
			}
		}
	}
	return out
}

// Sections returns the session's loaded definition.
func (e *Engine) Sections() []models.Section {
	return e.sections
}

// Answers returns a snapshot of the current answer map.
func (e *Engine) Answers() models.AnswerMap {
	return e.answers.Values()
}

// Editing reports whether the session edits an already-submitted record.
func (e *Engine) Editing() bool {
	return e.editing
}

// ValidateAnswer validates a candidate value for one question without
// storing it. Unknown aliases are invalid.
func (e *Engine) ValidateAnswer(alias string, value interface{}) models.ValidationResult {
	q, ok := e.questions[alias]
	if !ok {
		return models.InvalidResult(fmt.Sprintf("Unknown question %q", alias))
	}
	return ValidateQuestionValue(q, value)
}

// SetAnswer records a value. The value is applied locally and persisted in
// the background; visibility downstream recomputes from the updated map.
// Unknown aliases are rejected so persistence never accumulates orphan keys.
func (e *Engine) SetAnswer(alias string, value interface{}) error {
	if _, ok := e.questions[alias]; !ok {
		return fmt.Errorf("unknown question alias %q", alias)
	}
	e.answers.SetValue(alias, value)
	return nil
}

// Advance validates the current step against the live answers and, if it
// passes, moves forward. The validation failure, if any, is returned for
// direct display; navigation state is untouched on failure.
func (e *Engine) Advance() models.ValidationResult {
	if !e.nav.InRecap() {
		si, stepIdx := e.nav.Position()
		if si < len(e.sections) && stepIdx < len(e.sections[si].Steps) {
			step := e.sections[si].Steps[stepIdx]
			if res := ValidateStep(step.Questions, e.answers.Values()); !res.Valid {
				slog.Debug("Engine Advance blocked by validation", "userID", e.userID, "flow", e.flow, "error", res.Error)
				return res
			}
		}
	}
	e.nav.Advance()
	return models.ValidResult()
}

// Retreat moves back one visible step without validating.
func (e *Engine) Retreat() {
	e.nav.Retreat()
}

// State returns the navigation snapshot including progress.
func (e *Engine) State() models.NavigationState {
	si, stepIdx := e.nav.Position()
	return models.NavigationState{
		SectionIndex: si,
		StepIndex:    stepIdx,
		Recap:        e.nav.InRecap(),
		Complete:     e.nav.IsComplete(),
		Progress:     e.nav.ProgressPercent(),
	}
}

// SyncErr exposes the latest background persistence failure, if any.
func (e *Engine) SyncErr() error {
	return e.answers.SyncErr()
}

// Flush waits for outstanding background answer writes. Intended for tests
// and orderly shutdown.
func (e *Engine) Flush() {
	e.answers.Flush()
}

// Submit finalizes the flow: every visible section must validate, the
// submission is persisted synchronously, and the role workflow advances.
// Unlike per-answer writes, persistence failures here surface to the caller.
func (e *Engine) Submit(ctx context.Context, role string) (models.ValidationResult, error) {
	answers := e.answers.Values()
	for _, sec := range e.sections {
		if !Visible(sec, answers) {
			continue
		}
		var visibleSteps []models.Step
		for _, step := range sec.Steps {
			if Visible(step, answers) {
				visibleSteps = append(visibleSteps, step)
			}
		}
		if res, stepIdx := ValidateSection(visibleSteps, answers); !res.Valid {
			slog.Debug("Engine Submit blocked by validation", "userID", e.userID, "flow", e.flow, "section", sec.ID, "step", stepIdx, "error", res.Error)
			return res, nil
		}
	}

	if err := e.answers.MarkSubmitted(); err != nil {
		return models.ValidResult(), fmt.Errorf("failed to persist submission: %w", err)
	}

	if e.orch != nil {
		if err := e.orch.CompleteFlow(ctx, e.userID, role, e.flow, e.editing); err != nil {
			return models.ValidResult(), err
		}
	}

	e.nav.MarkComplete()
	slog.Info("Engine Submit succeeded", "userID", e.userID, "flow", e.flow, "role", role, "editing", e.editing)
	return models.ValidResult(), nil
}
