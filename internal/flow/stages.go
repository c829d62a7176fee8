// Package flow implements the conditional flow and stage progression engine.
//
// This file advances the per-role workflow when a flow completes. Stage
// record creation is the one path requiring idempotence: it can be reached
// from both explicit flow completion and generic advancement, so inserts
// treat an existing (userID, stageID) row as a successful no-op.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/notify"
	"github.com/entrylane/onboard/internal/store"
	"github.com/google/uuid"
)

// StageOrchestrator maps flow completions onto the per-role stage workflow.
type StageOrchestrator struct {
	stages    store.StageRepo
	profiles  store.ProfileRepo
	notifier  notify.Notifier
	workflows models.WorkflowConfig
	mapping   models.FlowStageMapping
}

// NewStageOrchestrator creates an orchestrator over the given repos and
// configuration. Nil workflows or mapping fall back to the compiled defaults.
func NewStageOrchestrator(st store.Store, notifier notify.Notifier, workflows models.WorkflowConfig, mapping models.FlowStageMapping) *StageOrchestrator {
	if workflows == nil {
		workflows = models.DefaultWorkflows
	}
	if mapping == nil {
		mapping = models.DefaultFlowStages
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	slog.Debug("Creating StageOrchestrator", "roles", len(workflows), "flows", len(mapping))
	return &StageOrchestrator{
		stages:    st,
		profiles:  st,
		notifier:  notifier,
		workflows: workflows,
		mapping:   mapping,
	}
}

// CompleteFlow marks the stage satisfied by flowName as completed for the
// user and creates the next stage record of the role's workflow. In editing
// mode it does nothing: re-saving previously submitted data must not
// re-trigger workflow progression. A missing flow mapping or role workflow
// is a configuration error surfaced to the caller.
func (o *StageOrchestrator) CompleteFlow(ctx context.Context, userID, role, flowName string, editing bool) error {
	if editing {
		slog.Debug("StageOrchestrator CompleteFlow skipped in editing mode", "userID", userID, "flow", flowName)
		return nil
	}

	fs, ok := o.mapping[flowName]
	if !ok {
		slog.Error("StageOrchestrator CompleteFlow missing mapping", "flow", flowName)
		return fmt.Errorf("%w: %s", models.ErrMissingStageMapping, flowName)
	}

	if err := o.markStageCompleted(userID, fs.StageID); err != nil {
		return err
	}

	o.sendFirstCompletionNotice(ctx, userID, fs.StageID)

	if err := o.createNextStage(userID, role, fs.StageID); err != nil {
		return err
	}
	slog.Info("StageOrchestrator CompleteFlow succeeded", "userID", userID, "role", role, "flow", flowName, "stageID", fs.StageID)
	return nil
}

// MoveToNextStage advances from the user's latest recorded stage (by
// creation order). A user with no progress records is seeded with the first
// stage of the role's workflow instead.
func (o *StageOrchestrator) MoveToNextStage(ctx context.Context, userID, role string) error {
	order, ok := o.workflows[role]
	if !ok || len(order) == 0 {
		slog.Error("StageOrchestrator MoveToNextStage missing workflow", "role", role)
		return fmt.Errorf("%w: %s", models.ErrMissingWorkflow, role)
	}

	records, err := o.stages.ListStageProgress(userID)
	if err != nil {
		return fmt.Errorf("failed to list stage progress: %w", err)
	}

	if len(records) == 0 {
		created, err := o.stages.InsertStageIfAbsent(newStageRecord(userID, order[0], models.StageStatusInProgress))
		if err != nil {
			return err
		}
		slog.Info("StageOrchestrator seeded first stage", "userID", userID, "role", role, "stageID", order[0], "created", created)
		return nil
	}

	latest := records[len(records)-1]
	return o.createNextStage(userID, role, latest.StageID)
}

// markStageCompleted upserts the (userID, stageID) record as completed,
// creating it if the user never entered the stage through normal paths.
func (o *StageOrchestrator) markStageCompleted(userID string, stageID int) error {
	now := time.Now()
	rec, err := o.stages.GetStageProgress(userID, stageID)
	if err != nil {
		return fmt.Errorf("failed to load stage progress: %w", err)
	}
	if rec == nil {
		rec = &models.StageProgressRecord{
			ID:        uuid.NewString(),
			UserID:    userID,
			StageID:   stageID,
			CreatedAt: now,
		}
	}
	rec.Status = models.StageStatusCompleted
	rec.UpdatedAt = now
	if err := o.stages.SaveStageProgress(*rec); err != nil {
		return fmt.Errorf("failed to mark stage completed: %w", err)
	}
	slog.Debug("StageOrchestrator marked stage completed", "userID", userID, "stageID", stageID)
	return nil
}

// sendFirstCompletionNotice notifies on the user's first-ever completion.
// Notification and the bookkeeping around it are best-effort; nothing here
// fails the completion.
func (o *StageOrchestrator) sendFirstCompletionNotice(ctx context.Context, userID string, stageID int) {
	profile, err := o.profiles.GetProfile(userID)
	if err != nil {
		slog.Error("StageOrchestrator profile load failed, skipping notice", "error", err, "userID", userID)
		return
	}
	if profile == nil {
		now := time.Now()
		profile = &models.UserProfile{UserID: userID, Role: models.DefaultRole, CreatedAt: now, UpdatedAt: now}
	}
	if profile.OnboardingComplete {
		return
	}

	sent := o.notifier.SendCompletionNotice(ctx, stageID, profile.Email, profile.Name)
	if !sent {
		slog.Warn("StageOrchestrator completion notice not delivered", "userID", userID, "stageID", stageID)
	}

	profile.OnboardingComplete = true
	profile.UpdatedAt = time.Now()
	if err := o.profiles.SaveProfile(*profile); err != nil {
		slog.Error("StageOrchestrator failed to record onboarding completion", "error", err, "userID", userID)
	}
}

// createNextStage creates the stage after stageID in the role's ordering as
// not_started. When the immediate next stage already exists and is
// completed, the stage after it is created instead (skip-forward). Duplicate
// inserts are successful no-ops.
func (o *StageOrchestrator) createNextStage(userID, role string, stageID int) error {
	order, ok := o.workflows[role]
	if !ok || len(order) == 0 {
		slog.Error("StageOrchestrator createNextStage missing workflow", "role", role)
		return fmt.Errorf("%w: %s", models.ErrMissingWorkflow, role)
	}

	idx := -1
	for i, id := range order {
		if id == stageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		slog.Warn("StageOrchestrator stage not in role workflow", "userID", userID, "role", role, "stageID", stageID)
		return nil
	}
	if idx+1 >= len(order) {
		slog.Debug("StageOrchestrator at final stage", "userID", userID, "role", role, "stageID", stageID)
		return nil
	}

	next := order[idx+1]
	existing, err := o.stages.GetStageProgress(userID, next)
	if err != nil {
		return fmt.Errorf("failed to load next stage progress: %w", err)
	}

	if existing == nil {
		created, err := o.stages.InsertStageIfAbsent(newStageRecord(userID, next, models.StageStatusNotStarted))
		if err != nil {
			return err
		}
		slog.Info("StageOrchestrator next stage ready", "userID", userID, "stageID", next, "created", created)
		return nil
	}

	if existing.Status == models.StageStatusCompleted && idx+2 < len(order) {
		after := order[idx+2]
		created, err := o.stages.InsertStageIfAbsent(newStageRecord(userID, after, models.StageStatusNotStarted))
		if err != nil {
			return err
		}
		slog.Info("StageOrchestrator skipped completed stage", "userID", userID, "skipped", next, "stageID", after, "created", created)
	}
	return nil
}

func newStageRecord(userID string, stageID int, status models.StageStatus) models.StageProgressRecord {
	now := time.Now()
	return models.StageProgressRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		StageID:   stageID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
