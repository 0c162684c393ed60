package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/featurectl/featurectl/pkg/engine"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewLocalBackend(filepath.Join(t.TempDir(), "state.json")))
}

func TestManager_LoadMissingGivesEmptyState(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if st.Serial != 0 || len(st.Resources) != 0 {
		t.Errorf("Expected empty state, got serial=%d resources=%d", st.Serial, len(st.Resources))
	}
}

func TestManager_SaveLoadRoundtrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	st := engine.NewState()
	st.Set(&engine.Resource{
		Type:   "feature",
		Name:   "auth",
		Status: engine.StatusPartial,
		Attributes: map[string]any{
			"partial_reason": "missing tests",
		},
		Files: []string{"auth.go"},
	})

	if err := m.Save(ctx, st); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	loaded, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	r := loaded.Get("feature.auth")
	if r == nil {
		t.Fatal("Expected feature.auth in loaded state")
	}
	if r.Status != engine.StatusPartial {
		t.Errorf("Expected partial, got %s", r.Status)
	}
	if r.Attributes["partial_reason"] != "missing tests" {
		t.Errorf("Expected reason attribute to survive, got %v", r.Attributes)
	}
	if loaded.Serial != st.Serial {
		t.Errorf("Expected serial %d, got %d", st.Serial, loaded.Serial)
	}
}

func TestManager_MarkCreated(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.MarkCreated(ctx, "feature.search", []string{"search.go"}, []string{"search_test.go"}, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	st, _ := m.Load(ctx)
	r := st.Get("feature.search")
	if r == nil {
		t.Fatal("Expected feature.search in state")
	}
	if r.Status != engine.StatusImplemented {
		t.Errorf("Expected implemented, got %s", r.Status)
	}
	if r.Source != "manual" {
		t.Errorf("Expected manual source, got %q", r.Source)
	}
	if !r.Locked {
		t.Error("Expected resource to be locked")
	}
	if len(r.Files) != 1 || r.Files[0] != "search.go" {
		t.Errorf("Expected files [search.go], got %v", r.Files)
	}
}

func TestManager_MarkPartialAndBroken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.MarkPartial(ctx, "feature.a", "half done"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := m.MarkBroken(ctx, "feature.b", "tests fail"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	st, _ := m.Load(ctx)
	a := st.Get("feature.a")
	if a.Status != engine.StatusPartial || a.Attributes["partial_reason"] != "half done" {
		t.Errorf("Expected partial with reason, got %s %v", a.Status, a.Attributes)
	}
	b := st.Get("feature.b")
	if b.Status != engine.StatusBroken || b.Attributes["broken_reason"] != "tests fail" {
		t.Errorf("Expected broken with reason, got %s %v", b.Status, b.Attributes)
	}
}

func TestManager_RemoveMissing(t *testing.T) {
	m := newTestManager(t)

	err := m.Remove(context.Background(), "feature.ghost")
	if err == nil {
		t.Fatal("Expected error removing untracked resource")
	}

	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected engine error, got %T", err)
	}
	if engErr.Code != engine.ErrCodeNotFound {
		t.Errorf("Expected not-found code, got %s", engErr.Code)
	}
}
