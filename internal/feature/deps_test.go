package feature

import (
	"errors"
	"testing"
)

func TestAddDependencyValidation(t *testing.T) {
	q := setupTestQueue(t)
	a := createTestFeature(t, q, "a")
	b := createTestFeature(t, q, "b")

	if _, err := q.AddDependency(a.ID, a.ID, DependencyBlocks, ""); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("self dependency error = %v", err)
	}
	if _, err := q.AddDependency(a.ID, 9999, DependencyBlocks, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing endpoint error = %v", err)
	}
	if _, err := q.AddDependency(a.ID, b.ID, "sometimes", ""); err == nil {
		t.Error("expected invalid kind to be rejected")
	}

	if _, err := q.AddDependency(a.ID, b.ID, DependencyBlocks, "b first"); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	if _, err := q.AddDependency(a.ID, b.ID, DependencyBlocks, ""); !errors.Is(err, ErrDependencyExists) {
		t.Errorf("duplicate error = %v", err)
	}
}

func TestAddDependencyRejectsCycles(t *testing.T) {
	q := setupTestQueue(t)
	a := createTestFeature(t, q, "a")
	b := createTestFeature(t, q, "b")
	c := createTestFeature(t, q, "c")

	mustAdd := func(from, to int64) {
		t.Helper()
		if _, err := q.AddDependency(from, to, DependencyBlocks, ""); err != nil {
			t.Fatalf("add %d -> %d: %v", from, to, err)
		}
	}
	mustAdd(a.ID, b.ID)
	mustAdd(b.ID, c.ID)

	// Direct reverse and transitive cycles are both caught.
	if _, err := q.AddDependency(b.ID, a.ID, DependencyBlocks, ""); !errors.Is(err, ErrDependencyCycle) {
		t.Errorf("reverse edge error = %v, want ErrDependencyCycle", err)
	}
	if _, err := q.AddDependency(c.ID, a.ID, DependencyBlocks, ""); !errors.Is(err, ErrDependencyCycle) {
		t.Errorf("transitive edge error = %v, want ErrDependencyCycle", err)
	}
}

func TestBlockedAndReadyFeatures(t *testing.T) {
	q := setupTestQueue(t)
	base := createTestFeature(t, q, "base")
	blocked := createTestFeature(t, q, "dependent")
	loose := createTestFeature(t, q, "independent")

	if _, err := q.AddDependency(blocked.ID, base.ID, DependencyRequires, ""); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	blockedList, err := q.BlockedFeatures()
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if len(blockedList) != 1 || blockedList[0].ID != blocked.ID {
		t.Errorf("blocked = %+v, want just %d", blockedList, blocked.ID)
	}

	ready, err := q.ReadyFeatures()
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if len(ready) != 2 {
		t.Errorf("ready count = %d, want 2 (base and independent)", len(ready))
	}

	markPassing(t, q, base.ID)

	blockedList, _ = q.BlockedFeatures()
	if len(blockedList) != 0 {
		t.Errorf("blocked after pass = %+v, want none", blockedList)
	}
	_ = loose
}

func TestRelatedEdgesDoNotBlock(t *testing.T) {
	q := setupTestQueue(t)
	a := createTestFeature(t, q, "a")
	b := createTestFeature(t, q, "b")

	if _, err := q.AddDependency(a.ID, b.ID, DependencyRelated, "see also"); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	blocked, err := q.BlockedFeatures()
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if len(blocked) != 0 {
		t.Errorf("blocked = %+v, related edges must not gate", blocked)
	}
}

func TestNextWithDependencyGating(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q := NewQueue(QueueConfig{Store: store, ProjectDir: dir, GateOnDependencies: true})
	first := createTestFeature(t, q, "first")
	second := createTestFeature(t, q, "second")

	if _, err := q.AddDependency(first.ID, second.ID, DependencyBlocks, ""); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	// The highest-priority feature is blocked, so gating skips to the
	// dependency itself.
	next, err := q.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Errorf("next = %+v, want %d", next, second.ID)
	}
}

func TestRemoveDependency(t *testing.T) {
	q := setupTestQueue(t)
	a := createTestFeature(t, q, "a")
	b := createTestFeature(t, q, "b")

	if _, err := q.AddDependency(a.ID, b.ID, DependencyBlocks, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := q.RemoveDependency(a.ID, b.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := q.RemoveDependency(a.ID, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}

	deps, err := q.DependsOn(a.ID)
	if err != nil {
		t.Fatalf("depends on: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("deps = %+v, want none", deps)
	}
}

func TestMarkPassingReportsUnblockedDependents(t *testing.T) {
	q := setupTestQueue(t)
	base := createTestFeature(t, q, "base")
	dep := createTestFeature(t, q, "dependent")

	if _, err := q.AddDependency(dep.ID, base.ID, DependencyBlocks, ""); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	unblocked, err := q.newlyUnblocked(base.ID)
	if err != nil {
		t.Fatalf("newly unblocked: %v", err)
	}
	if len(unblocked) != 0 {
		t.Errorf("unblocked before pass = %v, want none", unblocked)
	}

	markPassing(t, q, base.ID)

	unblocked, err = q.newlyUnblocked(base.ID)
	if err != nil {
		t.Fatalf("newly unblocked: %v", err)
	}
	if len(unblocked) != 1 || unblocked[0] != dep.ID {
		t.Errorf("unblocked = %v, want [%d]", unblocked, dep.ID)
	}
}
