// Package store provides storage backends for Onboard.
//
// It persists flow definitions, answer submissions, workflow stage progress
// and user profiles behind a common interface with in-memory, SQLite,
// PostgreSQL and Redis implementations.
package store

import "github.com/entrylane/onboard/internal/models"

// SubmissionRepo persists per-user answer sets for a flow.
type SubmissionRepo interface {
	// GetSubmission returns the submission record for (userID, flow), or nil
	// if none exists.
	GetSubmission(userID, flow string) (*models.SubmissionRecord, error)

	// SaveSubmission upserts the full record, data and status together.
	SaveSubmission(rec models.SubmissionRecord) error

	// SaveSubmissionData upserts answer data without touching the status
	// column. Used when editing an already-submitted record.
	SaveSubmissionData(userID, flow string, data models.AnswerMap) error
}

// StageRepo persists workflow stage progress records, unique on
// (userID, stageID).
type StageRepo interface {
	// GetStageProgress returns the record for (userID, stageID), or nil if
	// none exists.
	GetStageProgress(userID string, stageID int) (*models.StageProgressRecord, error)

	// ListStageProgress returns all records for a user in creation order.
	ListStageProgress(userID string) ([]models.StageProgressRecord, error)

	// SaveStageProgress upserts a record by (userID, stageID).
	SaveStageProgress(rec models.StageProgressRecord) error

	// InsertStageIfAbsent inserts the record unless one already exists for
	// (userID, stageID). The boolean reports whether a row was created;
	// a duplicate is a successful no-op, not an error.
	InsertStageIfAbsent(rec models.StageProgressRecord) (bool, error)
}

// DefinitionRepo persists named flow definitions.
type DefinitionRepo interface {
	// GetFlowSections returns the stored sections of a flow.
	// Returns models.ErrUnknownFlow if the flow does not exist.
	GetFlowSections(flow string) ([]models.Section, error)

	// SaveFlowSections replaces the stored sections of an existing flow.
	SaveFlowSections(flow string, sections []models.Section) error

	// ListFlows returns the names of all flows.
	ListFlows() ([]string, error)

	// CreateFlow creates an empty flow. Returns models.ErrFlowExists if the
	// name is taken.
	CreateFlow(name string) error

	// DeleteFlow removes a flow and its definition.
	DeleteFlow(name string) error
}

// ProfileRepo persists user session and contact details.
type ProfileRepo interface {
	// GetProfile returns the profile for userID, or nil if none exists.
	GetProfile(userID string) (*models.UserProfile, error)

	// SaveProfile upserts a profile by userID.
	SaveProfile(p models.UserProfile) error
}

// Store is the full persistence surface of the engine.
type Store interface {
	SubmissionRepo
	StageRepo
	DefinitionRepo
	ProfileRepo

	// Close releases backend resources.
	Close() error
}
