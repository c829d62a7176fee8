package flow

import (
	"errors"
	"testing"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

// stallingRepo wraps the in-memory store and holds back any submission write
// whose snapshot predates the "city" answer until the gate is opened.
type stallingRepo struct {
	*store.InMemoryStore
	gate chan struct{}
}

func (r *stallingRepo) SaveSubmission(rec models.SubmissionRecord) error {
	if _, ok := rec.Data["city"]; !ok {
		<-r.gate
	}
	return r.InMemoryStore.SaveSubmission(rec)
}

// failingSubmissionRepo wraps the in-memory store and fails all writes.
type failingSubmissionRepo struct {
	*store.InMemoryStore
	err error
}

func (r *failingSubmissionRepo) SaveSubmission(rec models.SubmissionRecord) error {
	return r.err
}

func (r *failingSubmissionRepo) SaveSubmissionData(userID, flow string, data models.AnswerMap) error {
	return r.err
}

func TestAnswerStore_SetValueAppliesImmediately(t *testing.T) {
	st := store.NewInMemoryStore()
	a, err := NewAnswerStore(st, "u1", "kyc_seller", false)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}

	a.SetValue("role", "seller")
	if got := a.Value("role"); got != "seller" {
		t.Fatalf("value should be visible before persistence completes; got %v", got)
	}

	a.Flush()
	rec, err := st.GetSubmission("u1", "kyc_seller")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec == nil || rec.Data["role"] != "seller" {
		t.Fatalf("expected persisted answer; got %+v", rec)
	}
	if rec.Status != models.SubmissionStatusInProgress {
		t.Errorf("expected in_progress status; got %q", rec.Status)
	}
}

func TestAnswerStore_SlowEarlyWriteCannotClobberNewerAnswer(t *testing.T) {
	// The first scheduled write stalls in the repo while a second answer
	// arrives. Ordered persistence must not let the stale snapshot land
	// last and erase the newer answer.
	repo := &stallingRepo{InMemoryStore: store.NewInMemoryStore(), gate: make(chan struct{})}
	a, err := NewAnswerStore(repo, "u1", "kyc_seller", false)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}

	a.SetValue("role", "seller")
	a.SetValue("city", "cork")
	close(repo.gate)
	a.Flush()

	rec, err := repo.InMemoryStore.GetSubmission("u1", "kyc_seller")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec == nil || rec.Data["city"] != "cork" {
		t.Fatalf("newest answer lost to a stale snapshot: stored data = %v", rec.Data)
	}
	if rec.Data["role"] != "seller" {
		t.Errorf("earlier answer missing from final snapshot: %v", rec.Data)
	}
	if a.SyncErr() != nil {
		t.Errorf("unexpected sync error: %v", a.SyncErr())
	}
}

func TestAnswerStore_ResumesPersistedAnswers(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveSubmission(models.SubmissionRecord{
		UserID: "u1", Flow: "kyc_seller",
		Data:   models.AnswerMap{"role": "seller"},
		Status: models.SubmissionStatusInProgress,
	}); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	a, err := NewAnswerStore(st, "u1", "kyc_seller", false)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}
	if got := a.Value("role"); got != "seller" {
		t.Errorf("expected resumed answer; got %v", got)
	}
}

func TestAnswerStore_WriteFailureIsRecordedNotRaised(t *testing.T) {
	repo := &failingSubmissionRepo{InMemoryStore: store.NewInMemoryStore(), err: errors.New("db down")}
	a, err := NewAnswerStore(repo, "u1", "kyc_seller", false)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}

	a.SetValue("role", "seller")
	a.Flush()

	if got := a.Value("role"); got != "seller" {
		t.Error("local value must survive a failed write")
	}
	if a.SyncErr() == nil {
		t.Error("expected sync error after failed background write")
	}
}

func TestAnswerStore_EditingPersistsDataOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveSubmission(models.SubmissionRecord{
		UserID: "u1", Flow: "kyc_seller",
		Data:   models.AnswerMap{"role": "seller"},
		Status: models.SubmissionStatusSubmitted,
	}); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	a, err := NewAnswerStore(st, "u1", "kyc_seller", true)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}
	a.SetValue("name", "Ada")
	a.Flush()

	rec, err := st.GetSubmission("u1", "kyc_seller")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec.Status != models.SubmissionStatusSubmitted {
		t.Errorf("editing writes must not change status; got %q", rec.Status)
	}
	if rec.Data["name"] != "Ada" {
		t.Errorf("expected updated data; got %+v", rec.Data)
	}
}

func TestAnswerStore_MarkSubmitted(t *testing.T) {
	st := store.NewInMemoryStore()
	a, err := NewAnswerStore(st, "u1", "kyc_seller", false)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}
	a.SetValue("role", "seller")
	if err := a.MarkSubmitted(); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}

	rec, err := st.GetSubmission("u1", "kyc_seller")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec.Status != models.SubmissionStatusSubmitted {
		t.Errorf("expected submitted status; got %q", rec.Status)
	}
}

func TestAnswerStore_MarkSubmittedSurfacesFailure(t *testing.T) {
	repo := &failingSubmissionRepo{InMemoryStore: store.NewInMemoryStore(), err: errors.New("db down")}
	a, err := NewAnswerStore(repo, "u1", "kyc_seller", false)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}
	if err := a.MarkSubmitted(); err == nil {
		t.Fatal("submission persistence failure must surface to the caller")
	}
}

func TestAnswerStore_EditingMarkSubmittedKeepsStatus(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveSubmission(models.SubmissionRecord{
		UserID: "u1", Flow: "kyc_seller",
		Data:   models.AnswerMap{},
		Status: models.SubmissionStatusSubmitted,
	}); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	a, err := NewAnswerStore(st, "u1", "kyc_seller", true)
	if err != nil {
		t.Fatalf("NewAnswerStore: %v", err)
	}
	a.SetValue("role", "seller")
	if err := a.MarkSubmitted(); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	rec, err := st.GetSubmission("u1", "kyc_seller")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec.Status != models.SubmissionStatusSubmitted {
		t.Errorf("editing resubmission must keep stored status; got %q", rec.Status)
	}
	if rec.Data["role"] != "seller" {
		t.Errorf("expected updated data; got %+v", rec.Data)
	}
}
