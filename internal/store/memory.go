// Package store provides storage backends for Onboard.
//
// This file implements an in-memory store used for development and tests.
package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/entrylane/onboard/internal/models"
)

// InMemoryStore keeps all records in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]models.SubmissionRecord     // userID + "\x00" + flow
	stages      map[string][]models.StageProgressRecord // userID -> records in creation order
	flows       map[string][]models.Section
	profiles    map[string]models.UserProfile
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		submissions: make(map[string]models.SubmissionRecord),
		stages:      make(map[string][]models.StageProgressRecord),
		flows:       make(map[string][]models.Section),
		profiles:    make(map[string]models.UserProfile),
	}
}

func submissionKey(userID, flow string) string {
	return userID + "\x00" + flow
}

// GetSubmission returns the submission record for (userID, flow), or nil.
func (s *InMemoryStore) GetSubmission(userID, flow string) (*models.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.submissions[submissionKey(userID, flow)]
	if !ok {
		return nil, nil
	}
	rec.Data = rec.Data.Clone()
	return &rec, nil
}

// SaveSubmission upserts the full submission record.
func (s *InMemoryStore) SaveSubmission(rec models.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Data = rec.Data.Clone()
	s.submissions[submissionKey(rec.UserID, rec.Flow)] = rec
	return nil
}

// SaveSubmissionData upserts answer data without touching status.
func (s *InMemoryStore) SaveSubmissionData(userID, flow string, data models.AnswerMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := submissionKey(userID, flow)
	rec, ok := s.submissions[key]
	if !ok {
		rec = models.SubmissionRecord{UserID: userID, Flow: flow, Status: models.SubmissionStatusInProgress}
	}
	rec.Data = data.Clone()
	s.submissions[key] = rec
	return nil
}

// GetStageProgress returns the record for (userID, stageID), or nil.
func (s *InMemoryStore) GetStageProgress(userID string, stageID int) (*models.StageProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.stages[userID] {
		if rec.StageID == stageID {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

// ListStageProgress returns all records for a user in creation order.
func (s *InMemoryStore) ListStageProgress(userID string) ([]models.StageProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StageProgressRecord, len(s.stages[userID]))
	copy(out, s.stages[userID])
	return out, nil
}

// SaveStageProgress upserts a record by (userID, stageID).
func (s *InMemoryStore) SaveStageProgress(rec models.StageProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.stages[rec.UserID]
	for i := range records {
		if records[i].StageID == rec.StageID {
			rec.CreatedAt = records[i].CreatedAt
			records[i] = rec
			return nil
		}
	}
	s.stages[rec.UserID] = append(records, rec)
	return nil
}

// InsertStageIfAbsent inserts unless a record for (userID, stageID) exists.
func (s *InMemoryStore) InsertStageIfAbsent(rec models.StageProgressRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.stages[rec.UserID] {
		if existing.StageID == rec.StageID {
			slog.Debug("InMemoryStore InsertStageIfAbsent duplicate", "userID", rec.UserID, "stageID", rec.StageID)
			return false, nil
		}
	}
	s.stages[rec.UserID] = append(s.stages[rec.UserID], rec)
	return true, nil
}

// GetFlowSections returns the stored sections of a flow.
func (s *InMemoryStore) GetFlowSections(flow string) ([]models.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sections, ok := s.flows[flow]
	if !ok {
		return nil, models.ErrUnknownFlow
	}
	out := make([]models.Section, len(sections))
	copy(out, sections)
	return out, nil
}

// SaveFlowSections replaces the stored sections of an existing flow.
func (s *InMemoryStore) SaveFlowSections(flow string, sections []models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[flow]; !ok {
		return models.ErrUnknownFlow
	}
	out := make([]models.Section, len(sections))
	copy(out, sections)
	s.flows[flow] = out
	return nil
}

// ListFlows returns the names of all flows, sorted for stable output.
func (s *InMemoryStore) ListFlows() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.flows))
	for name := range s.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateFlow creates an empty flow.
func (s *InMemoryStore) CreateFlow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[name]; ok {
		return models.ErrFlowExists
	}
	s.flows[name] = []models.Section{}
	return nil
}

// DeleteFlow removes a flow and its definition.
func (s *InMemoryStore) DeleteFlow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, name)
	return nil
}

// GetProfile returns the profile for userID, or nil.
func (s *InMemoryStore) GetProfile(userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveProfile upserts a profile by userID.
func (s *InMemoryStore) SaveProfile(p models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)
