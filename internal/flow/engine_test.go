package flow

import (
	"context"
	"testing"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

func newTestEngine(t *testing.T, sections []models.Section, editing bool) (*Engine, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	seedFlow(t, st, "kyc_seller", sections)
	orch := NewStageOrchestrator(st, &stubNotifier{ok: true}, nil, nil)
	e, err := NewEngine(NewDefinitionStore(st), st, orch, "u1", "kyc_seller", editing)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, st
}

func TestEngine_RejectsUnknownAlias(t *testing.T) {
	e, _ := newTestEngine(t, navSections(), false)
	if err := e.SetAnswer("nope", "x"); err == nil {
		t.Fatal("unknown alias must be rejected")
	}
	res := e.ValidateAnswer("nope", "x")
	if res.Valid {
		t.Fatal("validating an unknown alias must fail")
	}
}

func TestEngine_AdvanceBlockedByValidation(t *testing.T) {
	sections := []models.Section{
		{ID: "a", Steps: []models.Step{{ID: "s1", Questions: []models.Question{
			{Type: models.QuestionTypeSingleSelection, Alias: "role", Required: true, Selection: &models.SelectionProps{Options: []string{"seller", "buyer"}}},
		}}}},
	}
	e, _ := newTestEngine(t, sections, false)

	res := e.Advance()
	if res.Valid {
		t.Fatal("advance past an unanswered required question must be blocked")
	}
	if state := e.State(); state.SectionIndex != 0 || state.StepIndex != 0 || state.Recap {
		t.Errorf("blocked advance must not move: %+v", state)
	}

	if err := e.SetAnswer("role", "seller"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if res := e.Advance(); !res.Valid {
		t.Fatalf("advance should pass after answering; got %q", res.Error)
	}
	if state := e.State(); !state.Recap {
		t.Errorf("expected recap after the only step: %+v", state)
	}
}

func TestEngine_SubmitAdvancesWorkflow(t *testing.T) {
	e, st := newTestEngine(t, navSections(), false)
	if err := e.SetAnswer("role", "seller"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	res, err := e.Submit(context.Background(), "seller")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Valid {
		t.Fatalf("submit blocked: %q", res.Error)
	}
	if !e.State().Complete {
		t.Error("submit should mark the flow complete")
	}

	rec, err := st.GetSubmission("u1", "kyc_seller")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec == nil || rec.Status != models.SubmissionStatusSubmitted {
		t.Fatalf("expected submitted record; got %+v", rec)
	}

	records, err := st.ListStageProgress("u1")
	if err != nil {
		t.Fatalf("ListStageProgress: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected stage 1 completed and stage 4 readied; got %d records", len(records))
	}
}

func TestEngine_SubmitValidatesVisibleSectionsOnly(t *testing.T) {
	sections := []models.Section{
		{ID: "basics", Steps: []models.Step{{ID: "s1", Questions: []models.Question{
			{Type: models.QuestionTypeSingleSelection, Alias: "role", Required: true, Selection: &models.SelectionProps{Options: []string{"seller", "buyer"}}},
		}}}},
		{ID: "seller", ConditionalDisplay: rule("role", "seller", models.OperatorEquals), Steps: []models.Step{
			{ID: "s2", Questions: []models.Question{
				{Type: models.QuestionTypeSingleSelection, Alias: "inventory", Required: true, Selection: &models.SelectionProps{Options: []string{"yes", "no"}}},
			}},
		}},
	}
	e, _ := newTestEngine(t, sections, false)
	if err := e.SetAnswer("role", "buyer"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	// The seller section is hidden for buyers, so its unanswered required
	// question must not block submission.
	res, err := e.Submit(context.Background(), "buyer")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Valid {
		t.Fatalf("hidden section blocked submission: %q", res.Error)
	}
}

func TestEngine_SubmitBlockedByValidation(t *testing.T) {
	e, _ := newTestEngine(t, []models.Section{
		{ID: "a", Steps: []models.Step{{ID: "s1", Questions: []models.Question{
			{Type: models.QuestionTypeSingleSelection, Alias: "role", Required: true, Selection: &models.SelectionProps{Options: []string{"seller", "buyer"}}},
		}}}},
	}, false)

	res, err := e.Submit(context.Background(), "seller")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Valid {
		t.Fatal("submission with missing required answers must fail validation")
	}
	if e.State().Complete {
		t.Error("failed submission must not complete the flow")
	}
}

func TestEngine_EditingSubmitSkipsStages(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFlow(t, st, "kyc_seller", navSections())
	if err := st.SaveSubmission(models.SubmissionRecord{
		UserID: "u1", Flow: "kyc_seller",
		Data:   models.AnswerMap{"role": "seller"},
		Status: models.SubmissionStatusSubmitted,
	}); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	orch := NewStageOrchestrator(st, &stubNotifier{ok: true}, nil, nil)
	e, err := NewEngine(NewDefinitionStore(st), st, orch, "u1", "kyc_seller", true)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	res, err := e.Submit(context.Background(), "seller")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Valid {
		t.Fatalf("edit submit blocked: %q", res.Error)
	}
	records, err := st.ListStageProgress("u1")
	if err != nil {
		t.Fatalf("ListStageProgress: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("editing submission must not advance the workflow; got %d records", len(records))
	}
}
