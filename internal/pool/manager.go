package pool

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"hive/internal/events"
	"hive/internal/feature"
)

// ManagerConfig carries the settings shared by every pool.
type ManagerConfig struct {
	MaxAgents    int
	AgentBinary  string
	DefaultModel string
	Bus          *events.Bus
}

// Manager is the process-wide pool registry, one pool per project
// name.
type Manager struct {
	cfg ManagerConfig

	mu    sync.Mutex
	pools map[string]*Pool
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:   cfg,
		pools: make(map[string]*Pool),
	}
}

// ForProject returns the project's pool, creating it on first use.
// The caller owns the store's lifetime.
func (m *Manager) ForProject(projectName, projectDir string, store *feature.Store) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[projectName]; ok {
		return p
	}

	p := New(Config{
		ProjectName:  projectName,
		ProjectDir:   projectDir,
		MaxAgents:    m.cfg.MaxAgents,
		AgentBinary:  m.cfg.AgentBinary,
		DefaultModel: m.cfg.DefaultModel,
		Store:        store,
		Bus:          m.cfg.Bus,
	})
	m.pools[projectName] = p
	return p
}

// Pools returns the live pools.
func (m *Manager) Pools() []*Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}

// Shutdown stops every agent in every pool.
func (m *Manager) Shutdown() {
	for _, p := range m.Pools() {
		if errs := p.StopAll(); len(errs) > 0 {
			for _, err := range errs {
				log.Printf("[pool] shutdown: %v", err)
			}
		}
	}
}

// CleanupOrphanedLocks scans a project's lock directory and removes
// locks left behind by dead supervisors: files whose PID is not alive,
// whose process is not the agent binary, or which cannot be parsed.
// Returns the removed file names.
func (m *Manager) CleanupOrphanedLocks(projectDir string) ([]string, error) {
	return CleanupOrphanedLocks(projectDir, m.cfg.AgentBinary)
}

// CleanupOrphanedLocks is the standalone form used at supervisor
// start-up, before any pool exists.
func CleanupOrphanedLocks(projectDir, agentBinary string) ([]string, error) {
	dir := filepath.Join(projectDir, LockDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lock directory: %w", err)
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if lockIsOrphaned(path, agentBinary) {
			if err := os.Remove(path); err != nil {
				log.Printf("[pool] remove orphaned lock %s: %v", path, err)
				continue
			}
			removed = append(removed, e.Name())
		}
	}

	if len(removed) > 0 {
		log.Printf("[pool] removed %d orphaned lock(s) in %s", len(removed), dir)
	}
	return removed, nil
}

// lockIsOrphaned decides whether a lock file refers to a live agent
// process. Malformed locks are orphans.
func lockIsOrphaned(path, agentBinary string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}

	if err := syscall.Kill(pid, 0); err != nil {
		return true
	}

	// The PID is alive; make sure it is actually an agent and not an
	// unrelated process that reused the number. When /proc is not
	// available, keep the lock.
	cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}
	return !strings.Contains(string(cmdline), filepath.Base(agentBinary))
}
