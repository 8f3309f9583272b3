package feature

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DBFileName is the database file kept in every project root.
const DBFileName = "features.db"

// Store wraps the per-project SQLite database. All state-machine writes
// go through it; each transition is a single transaction.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex

	// priorityMu serializes priority assignment in Skip, Create and
	// CreateBulk so concurrent inserts cannot collide on max+1.
	priorityMu sync.Mutex
}

// DBPath returns the path to the feature database for a project root.
func DBPath(projectDir string) string {
	return filepath.Join(projectDir, DBFileName)
}

// Open opens (creating if needed) the feature database for a project
// root, enables WAL mode and foreign keys, and applies migrations.
func Open(projectDir string) (*Store, error) {
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}

	path := DBPath(projectDir)
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{
		conn: conn,
		path: path,
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending schema migrations, then adds any columns
// missing from databases created before the verification fields
// existed.
func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Features},
		{2, migrationV2StatusLog},
		{3, migrationV3Dependencies},
		{4, migrationV4Agents},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return s.migrateAddColumns()
}

// migrateAddColumns upgrades feature tables created by older releases
// in place. Column defaults match new-row defaults.
func (s *Store) migrateAddColumns() error {
	rows, err := s.conn.Query("PRAGMA table_info(features)")
	if err != nil {
		return fmt.Errorf("inspect features table: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read table info: %w", err)
	}

	additions := []struct {
		column string
		sql    string
	}{
		{"in_progress", "ALTER TABLE features ADD COLUMN in_progress INTEGER NOT NULL DEFAULT 0"},
		{"verification_command", "ALTER TABLE features ADD COLUMN verification_command TEXT"},
		{"verification_evidence", "ALTER TABLE features ADD COLUMN verification_evidence TEXT"},
		{"marked_passing_at", "ALTER TABLE features ADD COLUMN marked_passing_at TEXT"},
		{"assigned_to_agent_id", "ALTER TABLE features ADD COLUMN assigned_to_agent_id TEXT"},
		{"attempt_count", "ALTER TABLE features ADD COLUMN attempt_count INTEGER NOT NULL DEFAULT 0"},
	}

	for _, a := range additions {
		if existing[a.column] {
			continue
		}
		if _, err := s.conn.Exec(a.sql); err != nil {
			return fmt.Errorf("add column %s: %w", a.column, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Features = `
CREATE TABLE IF NOT EXISTS features (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	priority INTEGER NOT NULL,
	category TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	steps TEXT NOT NULL,
	passes INTEGER NOT NULL DEFAULT 0,
	in_progress INTEGER NOT NULL DEFAULT 0,
	assigned_to_agent_id TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	verification_command TEXT,
	verification_evidence TEXT,
	marked_passing_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_features_priority ON features(priority);
CREATE INDEX IF NOT EXISTS idx_features_passes ON features(passes);
`

const migrationV2StatusLog = `
CREATE TABLE IF NOT EXISTS status_change_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	feature_id INTEGER NOT NULL,
	feature_name TEXT NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	evidence TEXT,
	verification_output TEXT,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_change_log_feature_id ON status_change_log(feature_id);
`

const migrationV3Dependencies = `
CREATE TABLE IF NOT EXISTS feature_dependencies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	feature_id INTEGER NOT NULL,
	depends_on_id INTEGER NOT NULL,
	dependency_type TEXT NOT NULL DEFAULT 'blocks',
	notes TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(feature_id, depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_feature_dependencies_feature_id ON feature_dependencies(feature_id);
CREATE INDEX IF NOT EXISTS idx_feature_dependencies_depends_on_id ON feature_dependencies(depends_on_id);
`

const migrationV4Agents = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT PRIMARY KEY,
	project_name TEXT NOT NULL,
	status TEXT NOT NULL,
	model TEXT NOT NULL,
	yolo_mode INTEGER NOT NULL DEFAULT 0,
	pid INTEGER,
	created_at TEXT NOT NULL,
	started_at TEXT,
	last_heartbeat TEXT,
	current_feature_id INTEGER
);

CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
`

// Exec executes a query that doesn't return rows.
func (s *Store) Exec(query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (s *Store) QueryRow(query string, args ...any) *sql.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.QueryRow(query, args...)
}

// Transaction runs the given function within a transaction.
func (s *Store) Transaction(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
