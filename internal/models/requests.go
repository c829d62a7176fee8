// Package models defines the core data structures for Onboard.
//
// This file holds API request payloads and section update deltas.
package models

// SectionDelta is a partial section update produced by the authoring surface.
// Deletions are filtered out, updates are merged by ID, and entries with an
// unknown ID are appended as new sections.
type SectionDelta struct {
	ID    string  `json:"id" validate:"required"`
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Steps []Step  `json:"steps,omitempty"`
	Order *int    `json:"order,omitempty"`
	// ConditionalDisplay replaces the section rule when set. A nil pointer
	// means "not provided"; removing an existing rule requires
	// ClearConditionalDisplay, since the wire format cannot distinguish
	// absent from explicit null otherwise.
	ConditionalDisplay      *ConditionalDisplay `json:"conditional_display,omitempty"`
	ClearConditionalDisplay bool                `json:"clear_conditional_display,omitempty"`
	Delete                  bool                `json:"_delete,omitempty"`
}

// CreateFlowRequest is the payload for creating a named flow.
type CreateFlowRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateSectionsRequest is the payload for applying section deltas to a flow.
type UpdateSectionsRequest struct {
	Deltas []SectionDelta `json:"deltas" validate:"required,min=1,dive"`
}

// AnswerRequest is the payload for recording an answer value.
type AnswerRequest struct {
	Alias string      `json:"alias" validate:"required"`
	Value interface{} `json:"value"`
}

// StartSessionRequest is the payload for opening an engine session on a flow.
type StartSessionRequest struct {
	Flow string `json:"flow" validate:"required"`
	// Editing opens the session against an already-submitted record; answer
	// writes then persist data only and completion does not advance stages.
	Editing bool `json:"editing,omitempty"`
}

// NavigationState is the engine position snapshot returned to clients.
type NavigationState struct {
	SectionIndex int  `json:"section_index"`
	StepIndex    int  `json:"step_index"`
	Recap        bool `json:"recap"`
	Complete     bool `json:"complete"`
	Progress     int  `json:"progress"`
}
