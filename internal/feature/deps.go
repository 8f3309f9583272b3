package feature

import (
	"database/sql"
	"fmt"
	"time"
)

// AddDependency records that feature depends on dependsOn. Blocking
// kinds gate scheduling; "related" is informational. Edges that would
// close a cycle through blocking or non-blocking kinds alike are
// rejected, as are duplicates and direct reverses.
func (q *Queue) AddDependency(featureID, dependsOnID int64, kind DependencyKind, notes string) (*Dependency, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid dependency kind %q", kind)
	}
	if featureID == dependsOnID {
		return nil, fmt.Errorf("feature %d: %w", featureID, ErrSelfDependency)
	}

	// Both endpoints must exist.
	if _, err := q.Get(featureID); err != nil {
		return nil, err
	}
	if _, err := q.Get(dependsOnID); err != nil {
		return nil, err
	}

	exists, err := q.edgeExists(featureID, dependsOnID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("feature %d already depends on %d: %w", featureID, dependsOnID, ErrDependencyExists)
	}

	cycle, err := q.wouldCycle(featureID, dependsOnID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, fmt.Errorf("adding edge %d -> %d: %w", featureID, dependsOnID, ErrDependencyCycle)
	}

	now := time.Now()
	res, err := q.store.Exec(`
		INSERT INTO feature_dependencies (feature_id, depends_on_id, dependency_type, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, featureID, dependsOnID, string(kind), nullString(notes), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert dependency: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted id: %w", err)
	}

	return &Dependency{
		ID:          id,
		FeatureID:   featureID,
		DependsOnID: dependsOnID,
		Kind:        kind,
		Notes:       notes,
		CreatedAt:   now.UTC(),
	}, nil
}

// RemoveDependency deletes the edge featureID -> dependsOnID.
func (q *Queue) RemoveDependency(featureID, dependsOnID int64) error {
	res, err := q.store.Exec(`
		DELETE FROM feature_dependencies WHERE feature_id = ? AND depends_on_id = ?
	`, featureID, dependsOnID)
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no dependency from %d to %d: %w", featureID, dependsOnID, ErrNotFound)
	}
	return nil
}

// DependsOn lists the edges leaving featureID (what it waits on).
func (q *Queue) DependsOn(featureID int64) ([]Dependency, error) {
	return q.queryDeps(`SELECT id, feature_id, depends_on_id, dependency_type, notes, created_at
		FROM feature_dependencies WHERE feature_id = ? ORDER BY id`, featureID)
}

// Dependents lists the edges entering featureID (what waits on it).
func (q *Queue) Dependents(featureID int64) ([]Dependency, error) {
	return q.queryDeps(`SELECT id, feature_id, depends_on_id, dependency_type, notes, created_at
		FROM feature_dependencies WHERE depends_on_id = ? ORDER BY id`, featureID)
}

func (q *Queue) queryDeps(query string, args ...any) ([]Dependency, error) {
	rows, err := q.store.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var out []Dependency
	for rows.Next() {
		var (
			d     Dependency
			kind  string
			notes sql.NullString
			ts    string
		)
		if err := rows.Scan(&d.ID, &d.FeatureID, &d.DependsOnID, &kind, &notes, &ts); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Kind = DependencyKind(kind)
		if notes.Valid {
			d.Notes = notes.String
		}
		if t, err := parseTime(ts); err == nil {
			d.CreatedAt = t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// BlockedFeatures returns pending features with at least one
// unsatisfied blocking dependency.
func (q *Queue) BlockedFeatures() ([]Feature, error) {
	blocked, err := q.blockedSet()
	if err != nil {
		return nil, err
	}
	return q.filterPending(func(id int64) bool { return blocked[id] })
}

// ReadyFeatures returns pending features whose blocking dependencies
// (if any) have all passed.
func (q *Queue) ReadyFeatures() ([]Feature, error) {
	blocked, err := q.blockedSet()
	if err != nil {
		return nil, err
	}
	return q.filterPending(func(id int64) bool { return !blocked[id] })
}

func (q *Queue) filterPending(keep func(int64) bool) ([]Feature, error) {
	rows, err := q.store.Query(`SELECT ` + featureColumns + ` FROM features WHERE passes = 0 ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending features: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		if keep(f.ID) {
			out = append(out, *f)
		}
	}
	return out, rows.Err()
}

// blockedSet returns the ids of features with at least one blocking
// dependency on a non-passing feature.
func (q *Queue) blockedSet() (map[int64]bool, error) {
	rows, err := q.store.Query(`
		SELECT DISTINCT d.feature_id
		FROM feature_dependencies d
		JOIN features dep ON dep.id = d.depends_on_id
		WHERE d.dependency_type IN ('blocks', 'requires') AND dep.passes = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("find blocked features: %w", err)
	}
	defer rows.Close()

	blocked := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked id: %w", err)
		}
		blocked[id] = true
	}
	return blocked, rows.Err()
}

// newlyUnblocked returns dependents of passedID whose blocking
// dependencies are now all satisfied. Called after a feature commits to
// passing.
func (q *Queue) newlyUnblocked(passedID int64) ([]int64, error) {
	dependents, err := q.Dependents(passedID)
	if err != nil {
		return nil, err
	}
	if len(dependents) == 0 {
		return nil, nil
	}

	blocked, err := q.blockedSet()
	if err != nil {
		return nil, err
	}

	var out []int64
	seen := make(map[int64]bool)
	for _, d := range dependents {
		if !d.Kind.Blocking() || seen[d.FeatureID] {
			continue
		}
		seen[d.FeatureID] = true

		f, err := q.Get(d.FeatureID)
		if err != nil {
			return nil, err
		}
		if !f.Passes && !blocked[f.ID] {
			out = append(out, f.ID)
		}
	}
	return out, nil
}

// edgeExists reports whether featureID -> dependsOnID is recorded.
func (q *Queue) edgeExists(featureID, dependsOnID int64) (bool, error) {
	var n int
	row := q.store.QueryRow(`
		SELECT COUNT(*) FROM feature_dependencies WHERE feature_id = ? AND depends_on_id = ?
	`, featureID, dependsOnID)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("check dependency: %w", err)
	}
	return n > 0, nil
}

// wouldCycle reports whether adding featureID -> dependsOnID closes a
// cycle, i.e. whether featureID is already reachable from dependsOnID
// through existing edges. Depth-first over the adjacency map.
func (q *Queue) wouldCycle(featureID, dependsOnID int64) (bool, error) {
	adj, err := q.adjacency()
	if err != nil {
		return false, err
	}

	stack := []int64{dependsOnID}
	visited := make(map[int64]bool)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == featureID {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, adj[cur]...)
	}
	return false, nil
}

// adjacency loads the full edge map feature_id -> depends_on ids.
func (q *Queue) adjacency() (map[int64][]int64, error) {
	rows, err := q.store.Query(`SELECT feature_id, depends_on_id FROM feature_dependencies`)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}
	defer rows.Close()

	adj := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan dependency edge: %w", err)
		}
		adj[from] = append(adj[from], to)
	}
	return adj, rows.Err()
}
