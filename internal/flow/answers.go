// Package flow implements the conditional flow and stage progression engine.
//
// This file holds the session answer map. Mutations apply locally first and
// persist in the background: the UI-visible state advances immediately while
// per-answer write failures are logged and recorded, never raised.
package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

// AnswerStore is the mutable alias-to-value map for one session.
// Every mutation persists the whole map plus the status flag, except in
// editing mode where only the data is persisted so an already-submitted
// record never loses its status.
//
// Background writes are ordered: each scheduled snapshot carries a sequence
// number and the writer drops any snapshot older than the newest one already
// attempted, so a slow early write can never overwrite a later answer.
type AnswerStore struct {
	repo    store.SubmissionRepo
	userID  string
	flow    string
	editing bool

	mu      sync.RWMutex
	values  models.AnswerMap
	status  models.SubmissionStatus
	syncErr error
	seq     uint64

	// writeMu serializes persistence attempts; attempted is the sequence
	// number of the newest snapshot handed to the repo, guarded by writeMu.
	writeMu   sync.Mutex
	attempted uint64

	pending sync.WaitGroup
}

// NewAnswerStore creates the answer store for a session, resuming any
// previously persisted data for (userID, flow).
func NewAnswerStore(repo store.SubmissionRepo, userID, flow string, editing bool) (*AnswerStore, error) {
	slog.Debug("Creating AnswerStore", "userID", userID, "flow", flow, "editing", editing)
	a := &AnswerStore{
		repo:    repo,
		userID:  userID,
		flow:    flow,
		editing: editing,
		values:  make(models.AnswerMap),
		status:  models.SubmissionStatusInProgress,
	}

	rec, err := repo.GetSubmission(userID, flow)
	if err != nil {
		slog.Error("AnswerStore load failed", "error", err, "userID", userID, "flow", flow)
		return nil, err
	}
	if rec != nil {
		a.values = rec.Data.Clone()
		a.status = rec.Status
	}
	return a, nil
}

// Editing reports whether the store operates on an already-submitted record.
func (a *AnswerStore) Editing() bool {
	return a.editing
}

// Values returns a snapshot of the answer map.
func (a *AnswerStore) Values() models.AnswerMap {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.values.Clone()
}

// Value returns the answer for an alias, or nil.
func (a *AnswerStore) Value(alias string) interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.values[alias]
}

// SetValue applies the value locally and schedules a background persistence
// write of the full map. The local state is authoritative immediately; a
// failed write is logged and recorded as the sync error, with no rollback.
func (a *AnswerStore) SetValue(alias string, value interface{}) {
	a.mu.Lock()
	a.values[alias] = value
	a.seq++
	seq := a.seq
	snapshot := a.values.Clone()
	status := a.status
	a.mu.Unlock()

	slog.Debug("AnswerStore SetValue", "userID", a.userID, "flow", a.flow, "alias", alias)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		a.persist(seq, snapshot, status)
	}()
}

// persist writes the snapshot, data-only in editing mode. Writes are
// serialized and snapshots older than the newest attempted one are dropped:
// the dropped snapshot's data is a subset of what already went out, and its
// outcome must not overwrite the newer write's sync error.
func (a *AnswerStore) persist(seq uint64, data models.AnswerMap, status models.SubmissionStatus) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if seq <= a.attempted {
		slog.Debug("AnswerStore persist dropped stale snapshot", "userID", a.userID, "flow", a.flow)
		return
	}
	a.attempted = seq

	var err error
	if a.editing {
		err = a.repo.SaveSubmissionData(a.userID, a.flow, data)
	} else {
		err = a.repo.SaveSubmission(models.SubmissionRecord{
			UserID:    a.userID,
			Flow:      a.flow,
			Data:      data,
			Status:    status,
			UpdatedAt: time.Now(),
		})
	}

	a.mu.Lock()
	a.syncErr = err
	a.mu.Unlock()
	if err != nil {
		slog.Error("AnswerStore persist failed", "error", err, "userID", a.userID, "flow", a.flow)
		return
	}
	slog.Debug("AnswerStore persist succeeded", "userID", a.userID, "flow", a.flow)
}

// SyncErr returns the outcome of the most recent background write; nil when
// the last write succeeded or no write has happened yet.
func (a *AnswerStore) SyncErr() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.syncErr
}

// Flush blocks until all scheduled background writes have finished.
func (a *AnswerStore) Flush() {
	a.pending.Wait()
}

// MarkSubmitted persists the map with submitted status and waits for the
// write, surfacing any failure. In editing mode the stored status is left
// untouched and only the data is written.
func (a *AnswerStore) MarkSubmitted() error {
	a.pending.Wait()

	a.mu.Lock()
	if !a.editing {
		a.status = models.SubmissionStatusSubmitted
	}
	a.seq++
	seq := a.seq
	snapshot := a.values.Clone()
	status := a.status
	a.mu.Unlock()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.attempted = seq

	var err error
	if a.editing {
		err = a.repo.SaveSubmissionData(a.userID, a.flow, snapshot)
	} else {
		err = a.repo.SaveSubmission(models.SubmissionRecord{
			UserID:    a.userID,
			Flow:      a.flow,
			Data:      snapshot,
			Status:    status,
			UpdatedAt: time.Now(),
		})
	}
	if err != nil {
		slog.Error("AnswerStore MarkSubmitted failed", "error", err, "userID", a.userID, "flow", a.flow)
		return err
	}
	slog.Info("AnswerStore MarkSubmitted succeeded", "userID", a.userID, "flow", a.flow, "editing", a.editing)
	return nil
}
