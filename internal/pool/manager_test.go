package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeLock(t *testing.T, dir, name, content string) string {
	t.Helper()

	lockDir := filepath.Join(dir, LockDirName)
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(lockDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	return path
}

func TestCleanupRemovesDeadPIDLocks(t *testing.T) {
	dir := t.TempDir()
	// PIDs near the kernel max are effectively never alive in tests.
	writeLock(t, dir, "dead1234.lock", "4194000")

	removed, err := CleanupOrphanedLocks(dir, "hive-agent")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 1 || removed[0] != "dead1234.lock" {
		t.Errorf("removed = %v, want [dead1234.lock]", removed)
	}
}

func TestCleanupRemovesMalformedLocks(t *testing.T) {
	dir := t.TempDir()
	writeLock(t, dir, "bad1.lock", "not-a-pid")
	writeLock(t, dir, "bad2.lock", "-5")
	writeLock(t, dir, "bad3.lock", "")

	removed, err := CleanupOrphanedLocks(dir, "hive-agent")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("removed = %v, want all three malformed locks", removed)
	}
}

func TestCleanupKeepsLiveAgentLocks(t *testing.T) {
	dir := t.TempDir()
	// Our own PID is alive; claim its binary as the agent binary so
	// the cmdline check passes.
	pid := os.Getpid()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("executable: %v", err)
	}
	path := writeLock(t, dir, "live1234.lock", fmt.Sprintf("%d", pid))

	removed, err := CleanupOrphanedLocks(dir, filepath.Base(exe))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("live lock was deleted: %v", err)
	}
}

func TestCleanupRemovesPIDReuseLocks(t *testing.T) {
	dir := t.TempDir()
	// Our own PID is alive but its cmdline is the test binary, not the
	// agent binary, so the lock counts as reused.
	writeLock(t, dir, "reused12.lock", fmt.Sprintf("%d", os.Getpid()))

	removed, err := CleanupOrphanedLocks(dir, "hive-agent-binary-that-is-not-us")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 1 {
		t.Errorf("removed = %v, want the reused lock", removed)
	}
}

func TestCleanupMissingDirIsNoop(t *testing.T) {
	removed, err := CleanupOrphanedLocks(t.TempDir(), "hive-agent")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != nil {
		t.Errorf("removed = %v, want nil", removed)
	}
}

func TestCleanupIgnoresNonLockFiles(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, LockDirName)
	if err := os.MkdirAll(filepath.Join(lockDir, SignalDirName), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(lockDir, "notes.txt"), []byte("keep me"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := CleanupOrphanedLocks(dir, "hive-agent")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
	if _, err := os.Stat(filepath.Join(lockDir, "notes.txt")); err != nil {
		t.Errorf("non-lock file was deleted: %v", err)
	}
}
