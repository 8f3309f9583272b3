package feature

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// Backup defaults: at most one copy per cooldown window, newest
// DefaultBackupKeep copies retained.
const (
	BackupDirName         = ".features_backups"
	DefaultBackupKeep     = 20
	DefaultBackupCooldown = time.Minute
)

// BackupManager copies features.db into a rotating backup directory
// before destructive transitions. Repeat backups inside the cooldown
// window are suppressed.
type BackupManager struct {
	projectDir string
	keep       int
	cooldown   *catrate.Limiter

	// now is swappable for tests.
	now func() time.Time
}

// NewBackupManager creates a manager for the given project root.
// Non-positive keep/cooldown fall back to the defaults.
func NewBackupManager(projectDir string, keep int, cooldown time.Duration) *BackupManager {
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	if cooldown <= 0 {
		cooldown = DefaultBackupCooldown
	}
	return &BackupManager{
		projectDir: projectDir,
		keep:       keep,
		cooldown:   catrate.NewLimiter(map[time.Duration]int{cooldown: 1}),
		now:        time.Now,
	}
}

// Dir returns the backup directory path.
func (b *BackupManager) Dir() string {
	return filepath.Join(b.projectDir, BackupDirName)
}

// Backup copies features.db into the backup directory with a UTC
// timestamped name, then rotates old copies. It is a no-op when the
// database does not exist yet or when a backup ran within the cooldown
// window.
func (b *BackupManager) Backup() error {
	dbPath := DBPath(b.projectDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	// Consuming the cooldown slot and performing the copy are one
	// action; a suppressed backup is success.
	if _, ok := b.cooldown.Allow("backup"); !ok {
		return nil
	}

	dir := b.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("features_%s.db", b.now().UTC().Format("20060102_150405"))
	if err := copyFile(dbPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	if err := b.rotate(); err != nil {
		return fmt.Errorf("rotate backups: %w", err)
	}

	return nil
}

// rotate deletes all but the newest `keep` backups.
func (b *BackupManager) rotate() error {
	entries, err := os.ReadDir(b.Dir())
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "features_") && strings.HasSuffix(name, ".db") {
			names = append(names, name)
		}
	}

	if len(names) <= b.keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-b.keep] {
		if err := os.Remove(filepath.Join(b.Dir(), name)); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
