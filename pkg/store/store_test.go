package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/toolmint/toolmint/pkg/schema"
)

func sampleTool(id string) *schema.Tool {
	return &schema.Tool{
		APIVersion: "tool/v1",
		ID:         id,
		Name:       "Tip Calculator",
		Status:     schema.StatusDraft,
		Inputs: []schema.FormField{
			{ID: "subtotal", Type: "number", Label: "Subtotal", Required: true},
		},
		Logic: []schema.Step{
			{
				ID:   "tip",
				Type: "calculation",
				Calculation: &schema.CalculationConfig{
					Formula: "subtotal * 0.15",
					Variables: []schema.VariableBinding{
						{Name: "subtotal", From: "subtotal"},
					},
				},
			},
		},
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(sampleTool("tip-calculator")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get("tip-calculator")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Tip Calculator" || len(got.Logic) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestSaveRejectsInvalidTool(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	bad := sampleTool("broken")
	bad.Logic[0].Calculation.Formula = "subtotal +"
	if err := s.Save(bad); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := s.Get("broken"); err == nil {
		t.Error("invalid tool must not be indexed")
	}
	if _, statErr := os.Stat(filepath.Join(s.dir, "broken"+Ext)); !os.IsNotExist(statErr) {
		t.Error("invalid tool must not reach disk")
	}
}

func TestSaveRejectsCyclicControlFlow(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cyclic := sampleTool("looper")
	cyclic.Logic = append(cyclic.Logic, schema.Step{
		ID:   "again",
		Type: "condition",
		Condition: &schema.ConditionConfig{
			Expression: "tip > 0",
			Then:       "tip",
		},
	})
	if err := s.Save(cyclic); err == nil {
		t.Fatal("expected cycle rejection at save time")
	}
}

func TestGetReturnsIsolatedSnapshot(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(sampleTool("snap")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, _ := s.Get("snap")
	first.Logic[0].Calculation.Formula = "mutated"

	second, _ := s.Get("snap")
	if second.Logic[0].Calculation.Formula == "mutated" {
		t.Error("snapshot mutation leaked back into the store")
	}
}

func TestGetPublishedGating(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(sampleTool("gated")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := s.GetPublished("gated"); err == nil {
		t.Error("draft tool must not be served as published")
	}

	if _, err := s.Advance("gated"); err != nil { // draft → testing
		t.Fatalf("Advance: %v", err)
	}
	if _, err := s.Advance("gated"); err != nil { // testing → published
		t.Fatalf("Advance: %v", err)
	}
	got, err := s.GetPublished("gated")
	if err != nil {
		t.Fatalf("GetPublished: %v", err)
	}
	if got.Status != schema.StatusPublished {
		t.Errorf("status = %q", got.Status)
	}

	if _, err := s.Advance("gated"); err == nil {
		t.Error("advancing a published tool should fail")
	}
}

func TestOpenLoadsExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, id := range []string{"b-tool", "a-tool"} {
		if err := s.Save(sampleTool(id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list := reopened.List()
	if len(list) != 2 || list[0].ID != "a-tool" || list[1].ID != "b-tool" {
		t.Errorf("list = %v", list)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "bad"+Ext), []byte("status: nonsense\n"), 0644)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Error("expected error for invalid tool file")
	}
}

func TestDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(sampleTool("gone")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = s.Get("gone")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRevisionTracksSaves(t *testing.T) {
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := st.Revision("calc"); got != 0 {
		t.Errorf("revision before save = %d, want 0", got)
	}

	if err := st.Save(sampleTool("calc")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := st.Revision("calc"); got != 1 {
		t.Errorf("revision after save = %d, want 1", got)
	}

	if err := st.Save(sampleTool("calc")); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	if got := st.Revision("calc"); got != 2 {
		t.Errorf("revision after re-save = %d, want 2", got)
	}

	// Counters survive delete so a re-created id reads as changed.
	if err := st.Delete("calc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Save(sampleTool("calc")); err != nil {
		t.Fatalf("Save after delete: %v", err)
	}
	if got := st.Revision("calc"); got != 3 {
		t.Errorf("revision after delete and save = %d, want 3", got)
	}
}
