package pool

import (
	"sort"
	"testing"
)

func setupTestWatcher(t *testing.T) *SignalWatcher {
	t.Helper()

	sw, err := NewSignalWatcher(t.TempDir())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(sw.Close)
	return sw
}

func TestKillSignalRoundTrip(t *testing.T) {
	sw := setupTestWatcher(t)

	if sw.ShouldStop() {
		t.Error("stop signaled before any kill was sent")
	}

	if err := sw.SendKill(); err != nil {
		t.Fatalf("send kill: %v", err)
	}
	// The stat fallback picks the file up even if the watch event is
	// missed.
	if !sw.ShouldStop() {
		t.Error("kill signal not detected")
	}

	sw.ClearSignals()
	if sw.ShouldStop() {
		t.Error("stop still signaled after clear")
	}
}

func TestPauseSignalRoundTrip(t *testing.T) {
	sw := setupTestWatcher(t)

	if sw.ShouldPause() {
		t.Error("pause signaled before any pause was sent")
	}

	if err := sw.SendPause(); err != nil {
		t.Fatalf("send pause: %v", err)
	}
	if !sw.ShouldPause() {
		t.Error("pause signal not detected")
	}

	sw.ClearSignals()
	if sw.ShouldPause() {
		t.Error("pause still signaled after clear")
	}
}

func TestAgentKillTargetsOneAgent(t *testing.T) {
	sw := setupTestWatcher(t)

	if err := sw.SendAgentKill("abc12345"); err != nil {
		t.Fatalf("send agent kill: %v", err)
	}
	if err := sw.SendAgentKill("def67890"); err != nil {
		t.Fatalf("send agent kill: %v", err)
	}

	ids := sw.AgentKills()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "abc12345" || ids[1] != "def67890" {
		t.Errorf("agent kills = %v, want [abc12345 def67890]", ids)
	}

	// A per-agent kill never trips the global stop.
	if sw.ShouldStop() {
		t.Error("per-agent kill flagged a global stop")
	}

	sw.ClearAgentKill("abc12345")
	ids = sw.AgentKills()
	if len(ids) != 1 || ids[0] != "def67890" {
		t.Errorf("agent kills after clear = %v, want [def67890]", ids)
	}
}

func TestClearSignalsRemovesAgentKills(t *testing.T) {
	sw := setupTestWatcher(t)

	if err := sw.SendAgentKill("abc12345"); err != nil {
		t.Fatalf("send agent kill: %v", err)
	}

	sw.ClearSignals()
	if ids := sw.AgentKills(); len(ids) != 0 {
		t.Errorf("agent kills after clear = %v, want none", ids)
	}
}
