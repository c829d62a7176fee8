// Package flow implements the conditional flow and stage progression engine.
//
// This file manages named flow definitions: loading for a session, applying
// authoring deltas, and flow lifecycle operations.
package flow

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

// DefinitionStore serves flow definitions from a DefinitionRepo backend.
// Definitions fetched through it are immutable for the session that loaded
// them; a flow switch discards and refetches.
type DefinitionStore struct {
	repo store.DefinitionRepo
}

// NewDefinitionStore creates a DefinitionStore backed by a repo.
func NewDefinitionStore(repo store.DefinitionRepo) *DefinitionStore {
	slog.Debug("Creating DefinitionStore")
	return &DefinitionStore{repo: repo}
}

// FetchSections loads a flow's sections sorted ascending by declared order.
// The sort happens once at load time; order is stable afterwards.
func (d *DefinitionStore) FetchSections(flow string) ([]models.Section, error) {
	slog.Debug("DefinitionStore FetchSections", "flow", flow)
	sections, err := d.repo.GetFlowSections(flow)
	if err != nil {
		slog.Error("DefinitionStore FetchSections failed", "error", err, "flow", flow)
		return nil, err
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})
	slog.Debug("DefinitionStore FetchSections succeeded", "flow", flow, "sections", len(sections))
	return sections, nil
}

// UpdateSections applies authoring deltas to a flow and returns the stored
// result: deletions are filtered out, updates are merged into the matching
// section by ID, and deltas with an unknown ID are appended as new sections.
func (d *DefinitionStore) UpdateSections(flow string, deltas []models.SectionDelta) ([]models.Section, error) {
	slog.Debug("DefinitionStore UpdateSections", "flow", flow, "deltas", len(deltas))
	sections, err := d.repo.GetFlowSections(flow)
	if err != nil {
		slog.Error("DefinitionStore UpdateSections load failed", "error", err, "flow", flow)
		return nil, err
	}

	for _, delta := range deltas {
		if delta.Delete {
			sections = removeSection(sections, delta.ID)
			continue
		}
		idx := sectionIndex(sections, delta.ID)
		if idx < 0 {
			sections = append(sections, sectionFromDelta(delta))
			continue
		}
		mergeSection(&sections[idx], delta)
	}

	if err := models.ValidateFlowDefinition(sections); err != nil {
		slog.Error("DefinitionStore UpdateSections produced invalid definition", "error", err, "flow", flow)
		return nil, fmt.Errorf("invalid flow definition: %w", err)
	}

	if err := d.repo.SaveFlowSections(flow, sections); err != nil {
		slog.Error("DefinitionStore UpdateSections save failed", "error", err, "flow", flow)
		return nil, err
	}
	slog.Info("DefinitionStore UpdateSections succeeded", "flow", flow, "sections", len(sections))
	return sections, nil
}

// ListFlows returns the names of all flows.
func (d *DefinitionStore) ListFlows() ([]string, error) {
	return d.repo.ListFlows()
}

// CreateFlow creates a new empty flow.
func (d *DefinitionStore) CreateFlow(name string) error {
	slog.Debug("DefinitionStore CreateFlow", "flow", name)
	if err := d.repo.CreateFlow(name); err != nil {
		slog.Error("DefinitionStore CreateFlow failed", "error", err, "flow", name)
		return err
	}
	slog.Info("DefinitionStore CreateFlow succeeded", "flow", name)
	return nil
}

// DeleteFlow removes a flow and its definition.
func (d *DefinitionStore) DeleteFlow(name string) error {
	slog.Debug("DefinitionStore DeleteFlow", "flow", name)
	if err := d.repo.DeleteFlow(name); err != nil {
		slog.Error("DefinitionStore DeleteFlow failed", "error", err, "flow", name)
		return err
	}
	slog.Info("DefinitionStore DeleteFlow succeeded", "flow", name)
	return nil
}

func sectionIndex(sections []models.Section, id string) int {
	for i := range sections {
		if sections[i].ID == id {
			return i
		}
	}
	return -1
}

func removeSection(sections []models.Section, id string) []models.Section {
	out := sections[:0]
	for _, sec := range sections {
		if sec.ID != id {
			out = append(out, sec)
		}
	}
	return out
}

// mergeSection applies the provided fields of a delta onto a section.
// Clearing the conditional display removes the rule entirely rather than
// storing an empty one.
func mergeSection(sec *models.Section, delta models.SectionDelta) {
	if delta.Name != nil {
		sec.Name = *delta.Name
	}
	if delta.Color != nil {
		sec.Color = *delta.Color
	}
	if delta.Order != nil {
		sec.Order = *delta.Order
	}
	if delta.Steps != nil {
		sec.Steps = delta.Steps
	}
	if delta.ClearConditionalDisplay {
		sec.ConditionalDisplay = nil
	} else if delta.ConditionalDisplay != nil {
		sec.ConditionalDisplay = delta.ConditionalDisplay
	}
}

func sectionFromDelta(delta models.SectionDelta) models.Section {
	sec := models.Section{ID: delta.ID, Steps: delta.Steps}
	if delta.Name != nil {
		sec.Name = *delta.Name
	}
	if delta.Color != nil {
		sec.Color = *delta.Color
	}
	if delta.Order != nil {
		sec.Order = *delta.Order
	}
	if !delta.ClearConditionalDisplay {
		sec.ConditionalDisplay = delta.ConditionalDisplay
	}
	if sec.Steps == nil {
		sec.Steps = []models.Step{}
	}
	return sec
}
