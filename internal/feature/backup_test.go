package feature

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupBackupDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(DBPath(dir), []byte("not a real database"), 0644); err != nil {
		t.Fatalf("write db file: %v", err)
	}
	return dir
}

func countBackups(t *testing.T, b *BackupManager) int {
	t.Helper()

	entries, err := os.ReadDir(b.Dir())
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	return len(entries)
}

func TestBackupCopiesDatabase(t *testing.T) {
	dir := setupBackupDir(t)
	b := NewBackupManager(dir, 20, time.Minute)

	if err := b.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if got := countBackups(t, b); got != 1 {
		t.Fatalf("backups = %d, want 1", got)
	}

	entries, _ := os.ReadDir(b.Dir())
	data, err := os.ReadFile(filepath.Join(b.Dir(), entries[0].Name()))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != "not a real database" {
		t.Errorf("backup content = %q", data)
	}
}

func TestBackupCooldownSuppressesRepeats(t *testing.T) {
	dir := setupBackupDir(t)
	b := NewBackupManager(dir, 20, time.Minute)

	for i := 0; i < 5; i++ {
		if err := b.Backup(); err != nil {
			t.Fatalf("backup %d: %v", i, err)
		}
	}
	if got := countBackups(t, b); got != 1 {
		t.Errorf("backups = %d, want 1 (cooldown should suppress repeats)", got)
	}
}

func TestBackupMissingDatabaseIsNoop(t *testing.T) {
	dir := t.TempDir()
	b := NewBackupManager(dir, 20, time.Minute)

	if err := b.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if got := countBackups(t, b); got != 0 {
		t.Errorf("backups = %d, want 0", got)
	}
}

func TestBackupRotationKeepsNewest(t *testing.T) {
	dir := setupBackupDir(t)
	b := NewBackupManager(dir, 3, time.Minute)

	// Seed more timestamped copies than the retention limit.
	if err := os.MkdirAll(b.Dir(), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		name := "features_" + base.Add(time.Duration(i)*time.Minute).Format("20060102_150405") + ".db"
		if err := os.WriteFile(filepath.Join(b.Dir(), name), []byte("old"), 0644); err != nil {
			t.Fatalf("seed backup: %v", err)
		}
	}

	if err := b.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	entries, err := os.ReadDir(b.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("backups after rotate = %d, want 3", len(entries))
	}
	// The survivors are the newest timestamps.
	oldest := "features_" + base.Add(3*time.Minute).Format("20060102_150405") + ".db"
	if entries[0].Name() != oldest {
		t.Errorf("oldest survivor = %s, want %s", entries[0].Name(), oldest)
	}
}
