// Package models defines the core data structures for Onboard.
//
// This file holds workflow stage progression types and user profile records.
package models

import "time"

// StageStatus represents the progression status of a workflow stage record.
type StageStatus string

const (
	// StageStatusNotStarted indicates the stage exists but has not been entered.
	StageStatusNotStarted StageStatus = "not_started"
	// StageStatusInProgress indicates the user is currently working the stage.
	StageStatusInProgress StageStatus = "in_progress"
	// StageStatusCompleted indicates the stage has been completed.
	StageStatusCompleted StageStatus = "completed"
)

// IsValidStageStatus checks if the given stage status is valid.
func IsValidStageStatus(s StageStatus) bool {
	switch s {
	case StageStatusNotStarted, StageStatusInProgress, StageStatusCompleted:
		return true
	default:
		return false
	}
}

// StageProgressRecord tracks a user's progression through one workflow stage.
// Records are unique on (UserID, StageID), created lazily, and never deleted
// by the engine.
type StageProgressRecord struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	StageID   int         `json:"stage_id"`
	Status    StageStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// WorkflowConfig maps a role to its strictly ordered list of stage ids.
type WorkflowConfig map[string][]int

// FlowStage associates a flow with the workflow stage it satisfies.
// NextFlow optionally names the flow the surrounding application routes to
// after completion; the engine itself does not consume it.
type FlowStage struct {
	StageID  int    `json:"stage_id"`
	NextFlow string `json:"next_flow,omitempty"`
}

// FlowStageMapping maps flow names to their workflow stage associations.
type FlowStageMapping map[string]FlowStage

// DefaultRole is assumed when a user has no role record yet.
const DefaultRole = "seller"

// DefaultWorkflows is the compiled-in per-role stage ordering, overridable at
// orchestrator construction.
var DefaultWorkflows = WorkflowConfig{
	"seller": {1, 4, 2, 3},
	"buyer":  {1, 2, 3},
}

// DefaultFlowStages is the compiled-in flow to stage association.
var DefaultFlowStages = FlowStageMapping{
	"kyc_seller":        {StageID: 1, NextFlow: "listing_setup"},
	"listing_setup":     {StageID: 4, NextFlow: "financials"},
	"financials":        {StageID: 2, NextFlow: "review"},
	"review":            {StageID: 3},
	"kyc_buyer":         {StageID: 1, NextFlow: "buyer_preferences"},
	"buyer_preferences": {StageID: 2, NextFlow: "review"},
}

// SubmissionStatus represents the lifecycle status of a flow submission record.
type SubmissionStatus string

const (
	// SubmissionStatusInProgress indicates the flow is being filled in.
	SubmissionStatusInProgress SubmissionStatus = "in_progress"
	// SubmissionStatusSubmitted indicates the flow was submitted.
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
)

// SubmissionRecord is a user's persisted answer set for one flow.
type SubmissionRecord struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Flow      string           `json:"flow"`
	Data      AnswerMap        `json:"data"`
	Status    SubmissionStatus `json:"status"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// UserProfile carries session identity and notification contact details.
type UserProfile struct {
	UserID             string    `json:"user_id"`
	Role               string    `json:"role,omitempty"`
	Email              string    `json:"email,omitempty"`
	Name               string    `json:"name,omitempty"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
