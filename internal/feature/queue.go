package feature

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"hive/internal/events"
)

// Evidence and verification-output limits for the mark-passing path.
const (
	MinEvidenceLen = 50
	// VerificationOutputCap bounds the bytes per stream persisted in
	// the audit log.
	VerificationOutputCap = 1000
	// VerificationReportCap bounds the bytes per stream returned to the
	// caller when verification fails.
	VerificationReportCap = 500
)

// Field size limits, matching the import format.
const (
	maxCategoryLen = 100
	maxNameLen     = 255
)

// VerifyResult is the outcome of running a verification command.
type VerifyResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Verifier runs a feature's verification command in a working
// directory. The task runner implements this; the abstraction keeps
// command execution mockable in tests.
type Verifier interface {
	Verify(ctx context.Context, workDir, command string) (*VerifyResult, error)
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	Store      *Store
	ProjectDir string
	// Verifier is required only when features carry verification
	// commands.
	Verifier Verifier
	// Bus receives progress/feature_update/dependency_resolved events.
	// Optional.
	Bus *events.Bus
	// Backups defaults to a manager for ProjectDir with the stock
	// defaults.
	Backups *BackupManager
	// Limiter defaults to the process-wide 3-per-5-minute window.
	Limiter *MarkLimiter
	// GateOnDependencies makes Next skip features whose blocking
	// dependencies have not passed.
	GateOnDependencies bool
}

// Queue is the feature state machine over a project's Store.
type Queue struct {
	store      *Store
	projectDir string
	verifier   Verifier
	bus        *events.Bus
	backups    *BackupManager
	limiter    *MarkLimiter
	gateDeps   bool
}

// NewQueue creates a Queue from the given configuration.
func NewQueue(cfg QueueConfig) *Queue {
	backups := cfg.Backups
	if backups == nil {
		backups = NewBackupManager(cfg.ProjectDir, DefaultBackupKeep, DefaultBackupCooldown)
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = DefaultMarkLimiter()
	}
	return &Queue{
		store:      cfg.Store,
		projectDir: cfg.ProjectDir,
		verifier:   cfg.Verifier,
		bus:        cfg.Bus,
		backups:    backups,
		limiter:    limiter,
		gateDeps:   cfg.GateOnDependencies,
	}
}

// Store returns the underlying store.
func (q *Queue) Store() *Store {
	return q.store
}

const featureColumns = `id, priority, category, name, description, steps, passes, in_progress,
	assigned_to_agent_id, attempt_count, verification_command, verification_evidence, marked_passing_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFeature scans one feature row.
func scanFeature(row rowScanner) (*Feature, error) {
	var (
		f        Feature
		steps    string
		assigned sql.NullString
		vcmd     sql.NullString
		vev      sql.NullString
		markedAt sql.NullString
	)
	err := row.Scan(&f.ID, &f.Priority, &f.Category, &f.Name, &f.Description, &steps,
		&f.Passes, &f.InProgress, &assigned, &f.AttemptCount, &vcmd, &vev, &markedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &f.Steps); err != nil {
		return nil, fmt.Errorf("decode steps for feature %d: %w", f.ID, err)
	}
	if assigned.Valid {
		f.AssignedToAgentID = assigned.String
	}
	if vcmd.Valid {
		f.VerificationCommand = vcmd.String
	}
	if vev.Valid {
		f.VerificationEvidence = vev.String
	}
	f.MarkedPassingAt = parseNullableTime(markedAt)
	return &f, nil
}

// Get retrieves a feature by id.
func (q *Queue) Get(id int64) (*Feature, error) {
	row := q.store.QueryRow(`SELECT `+featureColumns+` FROM features WHERE id = ?`, id)
	f, err := scanFeature(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get feature: %w", err)
	}
	return f, nil
}

// List returns every feature ordered by (priority, id).
func (q *Queue) List() ([]Feature, error) {
	rows, err := q.store.Query(`SELECT ` + featureColumns + ` FROM features ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Stats returns passing/in-progress/total counts and the completion
// percentage rounded to one decimal place (0 when the backlog is
// empty).
func (q *Queue) Stats() (*Stats, error) {
	row := q.store.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN passes THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN in_progress THEN 1 ELSE 0 END), 0)
		FROM features
	`)

	var s Stats
	if err := row.Scan(&s.Total, &s.Passing, &s.InProgress); err != nil {
		return nil, fmt.Errorf("count features: %w", err)
	}

	if s.Total > 0 {
		s.Percentage = math.Round(float64(s.Passing)/float64(s.Total)*1000) / 10
	}
	return &s, nil
}

// Next returns the pending feature with the smallest (priority, id), or
// nil when everything passes. It is advisory only: the claim happens in
// MarkInProgress.
//
// With dependency gating enabled, features whose blocking dependencies
// have not passed are skipped over.
func (q *Queue) Next() (*Feature, error) {
	if !q.gateDeps {
		row := q.store.QueryRow(`SELECT ` + featureColumns + ` FROM features WHERE passes = 0 ORDER BY priority ASC, id ASC LIMIT 1`)
		f, err := scanFeature(row)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next feature: %w", err)
		}
		return f, nil
	}

	rows, err := q.store.Query(`SELECT ` + featureColumns + ` FROM features WHERE passes = 0 ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("next feature: %w", err)
	}
	defer rows.Close()

	var pending []*Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		pending = append(pending, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blocked, err := q.blockedSet()
	if err != nil {
		return nil, err
	}
	for _, f := range pending {
		if !blocked[f.ID] {
			return f, nil
		}
	}
	return nil, nil
}

// ForRegression returns a uniformly random sample of passing features.
// Limit must be within [1, 10]; zero uses the default of 3.
func (q *Queue) ForRegression(limit int) ([]Feature, error) {
	if limit == 0 {
		limit = 3
	}
	if limit < 1 || limit > 10 {
		return nil, fmt.Errorf("regression limit must be between 1 and 10, got %d", limit)
	}

	rows, err := q.store.Query(`SELECT `+featureColumns+` FROM features WHERE passes = 1 ORDER BY RANDOM() LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("regression sample: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// MarkInProgress claims a feature for an agent. The claim is a single
// compare-and-set update; zero rows affected means another agent holds
// the feature, it already passes, or it does not exist. Each successful
// claim counts as an attempt.
func (q *Queue) MarkInProgress(id int64, agentID string) (*Feature, error) {
	res, err := q.store.Exec(`
		UPDATE features
		SET in_progress = 1, assigned_to_agent_id = ?, attempt_count = attempt_count + 1
		WHERE id = ? AND in_progress = 0 AND passes = 0
	`, nullString(agentID), id)
	if err != nil {
		return nil, fmt.Errorf("claim feature: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim feature: %w", err)
	}
	if n == 0 {
		// Lost the race or wrong state; diagnose for the caller.
		f, err := q.Get(id)
		if err != nil {
			return nil, err
		}
		if f.Passes {
			return nil, fmt.Errorf("feature %d: %w", id, ErrAlreadyPassing)
		}
		return nil, fmt.Errorf("feature %d: %w", id, ErrAlreadyInProgress)
	}

	f, err := q.Get(id)
	if err != nil {
		return nil, err
	}
	q.emit(events.FeatureUpdate{FeatureID: f.ID, Passes: f.Passes})
	return f, nil
}

// ClearInProgress unconditionally releases a feature's claim. A
// transition row is logged only when the flag was actually set.
func (q *Queue) ClearInProgress(id int64) (*Feature, error) {
	f, err := q.Get(id)
	if err != nil {
		return nil, err
	}

	if f.InProgress {
		err := q.store.Transaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(`UPDATE features SET in_progress = 0, assigned_to_agent_id = NULL WHERE id = ?`, id); err != nil {
				return fmt.Errorf("clear in-progress: %w", err)
			}
			return insertStatusChange(tx, f.ID, f.Name, StatusInProgress, StatusPending, "", "")
		})
		if err != nil {
			return nil, err
		}
	}

	updated, err := q.Get(id)
	if err != nil {
		return nil, err
	}
	q.emit(events.FeatureUpdate{FeatureID: updated.ID, Passes: updated.Passes})
	return updated, nil
}

// Skip rotates a pending feature to the tail of the queue: its
// priority becomes max+1 and any claim is released. Passing features
// cannot be skipped.
func (q *Queue) Skip(id int64) (*SkipResult, error) {
	f, err := q.Get(id)
	if err != nil {
		return nil, err
	}
	if f.Passes {
		return nil, fmt.Errorf("cannot skip feature %d: %w", id, ErrAlreadyPassing)
	}

	q.store.priorityMu.Lock()
	defer q.store.priorityMu.Unlock()

	var newPriority int64
	err = q.store.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT COALESCE(MAX(priority), 0) FROM features`)
		var max int64
		if err := row.Scan(&max); err != nil {
			return fmt.Errorf("read max priority: %w", err)
		}
		newPriority = max + 1

		if _, err := tx.Exec(`
			UPDATE features SET priority = ?, in_progress = 0, assigned_to_agent_id = NULL WHERE id = ?
		`, newPriority, id); err != nil {
			return fmt.Errorf("skip feature: %w", err)
		}

		if f.InProgress {
			return insertStatusChange(tx, f.ID, f.Name, StatusInProgress, StatusPending, "", "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.emit(events.FeatureUpdate{FeatureID: f.ID, Passes: false})
	return &SkipResult{
		ID:          f.ID,
		Name:        f.Name,
		OldPriority: f.Priority,
		NewPriority: newPriority,
		Message:     fmt.Sprintf("Feature %q moved to end of queue", f.Name),
	}, nil
}

// MarkPassing is the guarded terminal transition. Layers, in order:
// rate limit, evidence length, state precondition, verification
// command, backup, commit, audit, rate-limit record. Rejections leave
// no trace; partial progress never leaks.
func (q *Queue) MarkPassing(ctx context.Context, id int64, evidence string) (*Feature, error) {
	// Layer 1: rate limit.
	if wait, ok := q.limiter.Check(); !ok {
		return nil, fmt.Errorf("%w: max %d features per %d minutes, wait %ds; this prevents mass-marking without proper verification",
			ErrRateLimited, MaxMarksPerWindow, int(MarkWindow.Minutes()), int(wait.Seconds()))
	}

	// Layer 2: evidence.
	stripped := strings.TrimSpace(evidence)
	if len(stripped) < MinEvidenceLen {
		return nil, fmt.Errorf("%w: evidence is required and must be at least %d characters; describe specifically what you tested and what the results were",
			ErrEvidenceTooShort, MinEvidenceLen)
	}

	// Layer 3: state precondition.
	f, err := q.Get(id)
	if err != nil {
		return nil, err
	}
	if !f.InProgress {
		return nil, fmt.Errorf("%w: call MarkInProgress(%d) first, do the work, then call MarkPassing", ErrNotInProgress, id)
	}

	// Layer 4: verification command.
	var verificationOutput string
	if f.VerificationCommand != "" {
		if q.verifier == nil {
			return nil, fmt.Errorf("feature %d has a verification command but no verifier is configured", id)
		}
		res, err := q.verifier.Verify(ctx, q.projectDir, f.VerificationCommand)
		if err != nil {
			return nil, fmt.Errorf("run verification command: %w", err)
		}
		if res.TimedOut {
			return nil, &VerificationError{Command: f.VerificationCommand, TimedOut: true}
		}
		verificationOutput = lastBytes(res.Stdout, VerificationOutputCap) + lastBytes(res.Stderr, VerificationOutputCap)
		if res.ExitCode != 0 {
			return nil, &VerificationError{
				Command:  f.VerificationCommand,
				ExitCode: res.ExitCode,
				Stdout:   lastBytes(res.Stdout, VerificationReportCap),
				Stderr:   lastBytes(res.Stderr, VerificationReportCap),
			}
		}
	}

	// Layer 5: backup before mutation.
	if err := q.backups.Backup(); err != nil {
		return nil, fmt.Errorf("backup database: %w", err)
	}

	// Layers 6+7: commit and audit in one transaction.
	now := time.Now().UTC()
	err = q.store.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE features
			SET passes = 1, in_progress = 0, assigned_to_agent_id = NULL,
				verification_evidence = ?, marked_passing_at = ?
			WHERE id = ?
		`, stripped, formatTime(now), id); err != nil {
			return fmt.Errorf("mark passing: %w", err)
		}
		return insertStatusChange(tx, f.ID, f.Name, StatusInProgress, StatusPassing, stripped, verificationOutput)
	})
	if err != nil {
		return nil, err
	}

	// Layer 8: only committed marks consume rate-limit slots.
	q.limiter.Record()

	updated, err := q.Get(id)
	if err != nil {
		return nil, err
	}

	q.emit(events.FeatureUpdate{FeatureID: updated.ID, Passes: true})
	q.emitProgress()
	if unblocked, err := q.newlyUnblocked(id); err != nil {
		log.Printf("[queue] compute unblocked features for %d: %v", id, err)
	} else if len(unblocked) > 0 {
		q.emit(events.DependencyResolved{FeatureID: id, UnblockedFeatureIDs: unblocked})
	}

	return updated, nil
}

// Create inserts a single feature at the tail of the queue.
func (q *Queue) Create(item CreateItem) (*Feature, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}

	q.store.priorityMu.Lock()
	defer q.store.priorityMu.Unlock()

	var id int64
	err := q.store.Transaction(func(tx *sql.Tx) error {
		next, err := nextPriority(tx)
		if err != nil {
			return err
		}
		id, err = insertFeature(tx, item, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	return q.Get(id)
}

// CreateBulk inserts features with sequential priorities in input
// order. Any validation error aborts the whole batch.
func (q *Queue) CreateBulk(items []CreateItem) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("no features to create")
	}
	for i, item := range items {
		if err := validateItem(item); err != nil {
			return 0, fmt.Errorf("feature at index %d: %w", i, err)
		}
	}

	q.store.priorityMu.Lock()
	defer q.store.priorityMu.Unlock()

	created := 0
	err := q.store.Transaction(func(tx *sql.Tx) error {
		next, err := nextPriority(tx)
		if err != nil {
			return err
		}
		for i, item := range items {
			if _, err := insertFeature(tx, item, next+int64(i)); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// StatusLog returns the newest audit rows, most recent first. A
// non-positive limit returns everything.
func (q *Queue) StatusLog(limit int) ([]StatusChange, error) {
	query := `SELECT id, feature_id, feature_name, old_status, new_status, evidence, verification_output, timestamp
		FROM status_change_log ORDER BY id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = q.store.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = q.store.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var (
			c         StatusChange
			evidence  sql.NullString
			verOutput sql.NullString
			ts        string
		)
		if err := rows.Scan(&c.ID, &c.FeatureID, &c.FeatureName, &c.OldStatus, &c.NewStatus, &evidence, &verOutput, &ts); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		if evidence.Valid {
			c.Evidence = evidence.String
		}
		if verOutput.Valid {
			c.VerificationOutput = verOutput.String
		}
		c.Timestamp, _ = parseTime(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

// insertStatusChange appends one audit row inside the caller's
// transaction.
func insertStatusChange(tx *sql.Tx, featureID int64, name string, old, new Status, evidence, verificationOutput string) error {
	_, err := tx.Exec(`
		INSERT INTO status_change_log (feature_id, feature_name, old_status, new_status, evidence, verification_output, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, featureID, name, string(old), string(new), nullString(evidence), nullString(verificationOutput), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("append status change: %w", err)
	}
	return nil
}

// nextPriority reads max(priority)+1 inside the caller's transaction.
// Callers must hold the priority lock.
func nextPriority(tx *sql.Tx) (int64, error) {
	var max int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(priority), 0) FROM features`).Scan(&max); err != nil {
		return 0, fmt.Errorf("read max priority: %w", err)
	}
	return max + 1, nil
}

// insertFeature inserts one row and returns its id.
func insertFeature(tx *sql.Tx, item CreateItem, priority int64) (int64, error) {
	steps, err := json.Marshal(item.Steps)
	if err != nil {
		return 0, fmt.Errorf("encode steps: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO features (priority, category, name, description, steps, passes, in_progress)
		VALUES (?, ?, ?, ?, ?, 0, 0)
	`, priority, item.Category, item.Name, item.Description, string(steps))
	if err != nil {
		return 0, fmt.Errorf("insert feature: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	return id, nil
}

// validateItem enforces the required fields and size limits.
func validateItem(item CreateItem) error {
	switch {
	case strings.TrimSpace(item.Category) == "":
		return fmt.Errorf("category is required")
	case len(item.Category) > maxCategoryLen:
		return fmt.Errorf("category exceeds %d characters", maxCategoryLen)
	case strings.TrimSpace(item.Name) == "":
		return fmt.Errorf("name is required")
	case len(item.Name) > maxNameLen:
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	case strings.TrimSpace(item.Description) == "":
		return fmt.Errorf("description is required")
	case len(item.Steps) == 0:
		return fmt.Errorf("steps must not be empty")
	}
	return nil
}

// emit publishes an event when a bus is configured.
func (q *Queue) emit(e events.Event) {
	if q.bus != nil {
		q.bus.Publish(e)
	}
}

// emitProgress publishes a progress snapshot.
func (q *Queue) emitProgress() {
	if q.bus == nil {
		return
	}
	s, err := q.Stats()
	if err != nil {
		log.Printf("[queue] stats for progress event: %v", err)
		return
	}
	q.bus.Publish(events.Progress{Passing: s.Passing, Total: s.Total, Percentage: s.Percentage})
}

// lastBytes returns the trailing n bytes of s.
func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// nullString maps "" to NULL for optional text columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
