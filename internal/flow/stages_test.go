package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

// stubNotifier records notice deliveries and reports a configurable outcome.
type stubNotifier struct {
	calls int
	ok    bool
}

func (n *stubNotifier) SendCompletionNotice(ctx context.Context, stageID int, recipientEmail, recipientName string) bool {
	n.calls++
	return n.ok
}

func newTestOrchestrator(t *testing.T) (*StageOrchestrator, *store.InMemoryStore, *stubNotifier) {
	t.Helper()
	st := store.NewInMemoryStore()
	notifier := &stubNotifier{ok: true}
	return NewStageOrchestrator(st, notifier, nil, nil), st, notifier
}

func stageStatuses(t *testing.T, st *store.InMemoryStore, userID string) map[int]models.StageStatus {
	t.Helper()
	records, err := st.ListStageProgress(userID)
	if err != nil {
		t.Fatalf("ListStageProgress: %v", err)
	}
	out := make(map[int]models.StageStatus, len(records))
	for _, rec := range records {
		out[rec.StageID] = rec.Status
	}
	return out
}

func TestCompleteFlow_SellerOnboarding(t *testing.T) {
	// The seller workflow is [1 4 2 3]: completing the seller KYC flow marks
	// stage 1 completed and readies stage 4, not stage 2.
	orch, st, _ := newTestOrchestrator(t)

	if err := orch.CompleteFlow(context.Background(), "u1", "seller", "kyc_seller", false); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}

	statuses := stageStatuses(t, st, "u1")
	if statuses[1] != models.StageStatusCompleted {
		t.Errorf("stage 1 should be completed; got %q", statuses[1])
	}
	if statuses[4] != models.StageStatusNotStarted {
		t.Errorf("stage 4 should be not_started; got %q", statuses[4])
	}
	if _, ok := statuses[2]; ok {
		t.Error("stage 2 must not be created yet for a seller")
	}
}

func TestCompleteFlow_Idempotent(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orch.CompleteFlow(ctx, "u1", "seller", "kyc_seller", false); err != nil {
		t.Fatalf("first CompleteFlow: %v", err)
	}
	if err := orch.CompleteFlow(ctx, "u1", "seller", "kyc_seller", false); err != nil {
		t.Fatalf("second CompleteFlow: %v", err)
	}

	records, err := st.ListStageProgress("u1")
	if err != nil {
		t.Fatalf("ListStageProgress: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected exactly 2 records after repeated completion; got %d", len(records))
	}
}

func TestCompleteFlow_EditingModeIsNoOp(t *testing.T) {
	orch, st, notifier := newTestOrchestrator(t)

	if err := orch.CompleteFlow(context.Background(), "u1", "seller", "kyc_seller", true); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}
	records, err := st.ListStageProgress("u1")
	if err != nil {
		t.Fatalf("ListStageProgress: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("editing mode must not touch stage records; got %d", len(records))
	}
	if notifier.calls != 0 {
		t.Errorf("editing mode must not notify; got %d calls", notifier.calls)
	}
}

func TestCompleteFlow_MissingMappingFails(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	err := orch.CompleteFlow(context.Background(), "u1", "seller", "no-such-flow", false)
	if !errors.Is(err, models.ErrMissingStageMapping) {
		t.Fatalf("expected ErrMissingStageMapping; got %v", err)
	}
}

func TestCompleteFlow_NotifierFailureIsSwallowed(t *testing.T) {
	orch, st, notifier := newTestOrchestrator(t)
	notifier.ok = false

	if err := orch.CompleteFlow(context.Background(), "u1", "seller", "kyc_seller", false); err != nil {
		t.Fatalf("notifier failure must not fail completion: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one notification attempt; got %d", notifier.calls)
	}
	// The completion flag is still set so later completions stay quiet.
	profile, err := st.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile == nil || !profile.OnboardingComplete {
		t.Error("onboarding completion flag should be recorded despite delivery failure")
	}
}

func TestCompleteFlow_NotifiesOnlyOnce(t *testing.T) {
	orch, st, notifier := newTestOrchestrator(t)
	ctx := context.Background()

	if err := st.SaveProfile(models.UserProfile{UserID: "u1", Role: "seller", Email: "dev@example.com"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	if err := orch.CompleteFlow(ctx, "u1", "seller", "kyc_seller", false); err != nil {
		t.Fatalf("first CompleteFlow: %v", err)
	}
	if err := orch.CompleteFlow(ctx, "u1", "seller", "listing_setup", false); err != nil {
		t.Fatalf("second CompleteFlow: %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("expected a single first-completion notice; got %d", notifier.calls)
	}
}

func TestCreateNextStage_SkipsCompletedStage(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	// Buyer workflow is [1 2 3]. Pre-complete stage 2, then complete stage 1:
	// the orchestrator should skip over 2 and ready stage 3.
	if _, err := st.InsertStageIfAbsent(models.StageProgressRecord{ID: "r2", UserID: "u1", StageID: 2, Status: models.StageStatusCompleted}); err != nil {
		t.Fatalf("InsertStageIfAbsent: %v", err)
	}
	if err := orch.CompleteFlow(ctx, "u1", "buyer", "kyc_buyer", false); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}

	statuses := stageStatuses(t, st, "u1")
	if statuses[3] != models.StageStatusNotStarted {
		t.Errorf("stage 3 should be readied past the completed stage 2; got %q", statuses[3])
	}
}

func TestCompleteFlow_FinalStageCreatesNothing(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)

	// "review" maps to stage 3, the buyer workflow's final stage.
	if err := orch.CompleteFlow(context.Background(), "u1", "buyer", "review", false); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}
	records, err := st.ListStageProgress("u1")
	if err != nil {
		t.Fatalf("ListStageProgress: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("final stage completion should create no successor; got %d records", len(records))
	}
}

func TestMoveToNextStage_SeedsFirstStage(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)

	if err := orch.MoveToNextStage(context.Background(), "u1", "seller"); err != nil {
		t.Fatalf("MoveToNextStage: %v", err)
	}
	statuses := stageStatuses(t, st, "u1")
	if statuses[1] != models.StageStatusInProgress {
		t.Errorf("first workflow stage should be seeded in_progress; got %q", statuses[1])
	}
}

func TestMoveToNextStage_AdvancesFromLatest(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orch.CompleteFlow(ctx, "u1", "seller", "kyc_seller", false); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}
	// Latest record is stage 4; advancing should ready stage 2.
	if err := orch.MoveToNextStage(ctx, "u1", "seller"); err != nil {
		t.Fatalf("MoveToNextStage: %v", err)
	}
	statuses := stageStatuses(t, st, "u1")
	if statuses[2] != models.StageStatusNotStarted {
		t.Errorf("stage 2 should be readied; got %q", statuses[2])
	}
}

func TestMoveToNextStage_UnknownRoleFails(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	err := orch.MoveToNextStage(context.Background(), "u1", "admin")
	if !errors.Is(err, models.ErrMissingWorkflow) {
		t.Fatalf("expected ErrMissingWorkflow; got %v", err)
	}
}
