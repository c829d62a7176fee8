package flow

import (
	"errors"
	"testing"

	"github.com/entrylane/onboard/internal/models"
	"github.com/entrylane/onboard/internal/store"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func seedFlow(t *testing.T, st *store.InMemoryStore, name string, sections []models.Section) {
	t.Helper()
	if err := st.CreateFlow(name); err != nil {
		t.Fatalf("CreateFlow: %v", err)
	}
	if err := st.SaveFlowSections(name, sections); err != nil {
		t.Fatalf("SaveFlowSections: %v", err)
	}
}

func TestDefinitionStore_FetchSectionsSortsByOrder(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFlow(t, st, "kyc_seller", []models.Section{
		{ID: "b", Order: 2},
		{ID: "a", Order: 1},
		{ID: "c", Order: 3},
	})

	defs := NewDefinitionStore(st)
	sections, err := defs.FetchSections("kyc_seller")
	if err != nil {
		t.Fatalf("FetchSections: %v", err)
	}
	got := []string{sections[0].ID, sections[1].ID, sections[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sections out of order: got %v, want %v", got, want)
		}
	}
}

func TestDefinitionStore_FetchUnknownFlow(t *testing.T) {
	defs := NewDefinitionStore(store.NewInMemoryStore())
	if _, err := defs.FetchSections("missing"); !errors.Is(err, models.ErrUnknownFlow) {
		t.Fatalf("expected ErrUnknownFlow; got %v", err)
	}
}

func TestDefinitionStore_UpdateSectionsMergesByID(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFlow(t, st, "kyc_seller", []models.Section{
		{ID: "a", Name: "Basics", Order: 1, ConditionalDisplay: rule("role", "seller", models.OperatorEquals)},
		{ID: "b", Name: "Details", Order: 2},
	})

	defs := NewDefinitionStore(st)
	sections, err := defs.UpdateSections("kyc_seller", []models.SectionDelta{
		{ID: "a", Name: strPtr("Renamed")},
		{ID: "b", Delete: true},
		{ID: "c", Name: strPtr("Appended"), Order: intPtr(3)},
	})
	if err != nil {
		t.Fatalf("UpdateSections: %v", err)
	}

	if len(sections) != 2 {
		t.Fatalf("expected 2 sections after delete and append; got %d", len(sections))
	}
	if sections[0].ID != "a" || sections[0].Name != "Renamed" {
		t.Errorf("merge failed: %+v", sections[0])
	}
	if sections[0].ConditionalDisplay == nil {
		t.Error("untouched rule must survive a partial update")
	}
	if sections[1].ID != "c" || sections[1].Name != "Appended" {
		t.Errorf("append failed: %+v", sections[1])
	}
}

func TestDefinitionStore_ClearConditionalDisplay(t *testing.T) {
	st := store.NewInMemoryStore()
	seedFlow(t, st, "kyc_seller", []models.Section{
		{ID: "a", ConditionalDisplay: rule("role", "seller", models.OperatorEquals)},
	})

	defs := NewDefinitionStore(st)
	sections, err := defs.UpdateSections("kyc_seller", []models.SectionDelta{
		{ID: "a", ClearConditionalDisplay: true},
	})
	if err != nil {
		t.Fatalf("UpdateSections: %v", err)
	}
	if sections[0].ConditionalDisplay != nil {
		t.Error("clearing should remove the rule entirely")
	}
}

func TestDefinitionStore_UpdateRejectsDuplicateAliases(t *testing.T) {
	st := store.NewInMemoryStore()
	q := models.Question{Type: models.QuestionTypeSingleSelection, Alias: "role", Selection: &models.SelectionProps{Options: []string{"a"}}}
	seedFlow(t, st, "kyc_seller", []models.Section{
		{ID: "a", Steps: []models.Step{{ID: "s1", Questions: []models.Question{q}}}},
	})

	defs := NewDefinitionStore(st)
	_, err := defs.UpdateSections("kyc_seller", []models.SectionDelta{
		{ID: "b", Steps: []models.Step{{ID: "s2", Questions: []models.Question{q}}}},
	})
	if !errors.Is(err, models.ErrDuplicateAlias) {
		t.Fatalf("expected ErrDuplicateAlias; got %v", err)
	}

	// The invalid update must not have been stored.
	sections, err := defs.FetchSections("kyc_seller")
	if err != nil {
		t.Fatalf("FetchSections: %v", err)
	}
	if len(sections) != 1 {
		t.Errorf("rejected update must leave the stored definition untouched; got %d sections", len(sections))
	}
}

func TestDefinitionStore_FlowLifecycle(t *testing.T) {
	st := store.NewInMemoryStore()
	defs := NewDefinitionStore(st)

	if err := defs.CreateFlow("kyc_seller"); err != nil {
		t.Fatalf("CreateFlow: %v", err)
	}
	if err := defs.CreateFlow("kyc_seller"); !errors.Is(err, models.ErrFlowExists) {
		t.Fatalf("expected ErrFlowExists; got %v", err)
	}

	flows, err := defs.ListFlows()
	if err != nil {
		t.Fatalf("ListFlows: %v", err)
	}
	if len(flows) != 1 || flows[0] != "kyc_seller" {
		t.Fatalf("unexpected flow list: %v", flows)
	}

	if err := defs.DeleteFlow("kyc_seller"); err != nil {
		t.Fatalf("DeleteFlow: %v", err)
	}
	flows, err = defs.ListFlows()
	if err != nil {
		t.Fatalf("ListFlows: %v", err)
	}
	if len(flows) != 0 {
		t.Fatalf("expected empty flow list after delete; got %v", flows)
	}
}
