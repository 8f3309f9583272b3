package pool

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"hive/internal/events"
	"hive/internal/feature"
)

// DefaultMaxAgents caps concurrent agents per project.
const DefaultMaxAgents = 10

// Config configures a per-project pool.
type Config struct {
	ProjectName string
	ProjectDir  string
	MaxAgents   int
	// AgentBinary is the executable launched for each agent.
	AgentBinary string
	// DefaultModel is used when SpawnAgent gets an empty model.
	DefaultModel string
	Store        *feature.Store
	Bus          *events.Bus
}

// Pool supervises the agent instances of one project.
type Pool struct {
	cfg Config

	mu     sync.Mutex
	agents map[string]*Instance
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	ProjectName  string                 `json:"project_name"`
	MaxAgents    int                    `json:"max_agents"`
	Agents       []events.AgentSnapshot `json:"agents"`
	ActiveCount  int                    `json:"active_count"`
	IdleCount    int                    `json:"idle_count"`
	WorkingCount int                    `json:"working_count"`
	PausedCount  int                    `json:"paused_count"`
}

// New creates a pool. MaxAgents defaults to DefaultMaxAgents.
func New(cfg Config) *Pool {
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = DefaultMaxAgents
	}
	return &Pool{
		cfg:    cfg,
		agents: make(map[string]*Instance),
	}
}

// SpawnAgent launches one agent. It refuses when the pool is full.
func (p *Pool) SpawnAgent(model string, yolo bool) (*Instance, error) {
	if model == "" {
		model = p.cfg.DefaultModel
	}

	p.mu.Lock()
	if len(p.agents) >= p.cfg.MaxAgents {
		n := len(p.agents)
		p.mu.Unlock()
		return nil, fmt.Errorf("pool for %s is full (%d/%d agents)", p.cfg.ProjectName, n, p.cfg.MaxAgents)
	}

	inst := NewInstance(InstanceConfig{
		ProjectName: p.cfg.ProjectName,
		ProjectDir:  p.cfg.ProjectDir,
		Binary:      p.cfg.AgentBinary,
		Model:       model,
		Yolo:        yolo,
		Store:       p.cfg.Store,
		Bus:         p.cfg.Bus,
	})
	p.agents[inst.ID] = inst
	p.mu.Unlock()

	if err := inst.Start(); err != nil {
		p.mu.Lock()
		delete(p.agents, inst.ID)
		p.mu.Unlock()
		return nil, err
	}

	p.publishPoolStatus()
	return inst, nil
}

// SpawnAgents launches n agents sequentially. It returns the instances
// that started plus the errors for those that did not.
func (p *Pool) SpawnAgents(n int, model string, yolo bool) ([]*Instance, []error) {
	var (
		started []*Instance
		errs    []error
	)
	for idx := 0; idx < n; idx++ {
		inst, err := p.SpawnAgent(model, yolo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		started = append(started, inst)
	}
	return started, errs
}

// StopAgent stops one agent and removes it from the pool.
func (p *Pool) StopAgent(id string) error {
	inst, err := p.get(id)
	if err != nil {
		return err
	}

	if err := inst.Stop(); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.agents, id)
	p.mu.Unlock()

	p.publishPoolStatus()
	return nil
}

// StopAll stops every agent. Individual failures are collected, not
// fatal.
func (p *Pool) StopAll() []error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.agents))
	for id := range p.agents {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := p.StopAgent(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// PauseAgent suspends one agent.
func (p *Pool) PauseAgent(id string) error {
	inst, err := p.get(id)
	if err != nil {
		return err
	}
	if err := inst.Pause(); err != nil {
		return err
	}
	p.publishPoolStatus()
	return nil
}

// ResumeAgent continues a paused agent.
func (p *Pool) ResumeAgent(id string) error {
	inst, err := p.get(id)
	if err != nil {
		return err
	}
	if err := inst.Resume(); err != nil {
		return err
	}
	p.publishPoolStatus()
	return nil
}

// HealthcheckAll polls every agent and reaps the dead. A pool event is
// broadcast when anything was reaped.
func (p *Pool) HealthcheckAll() []string {
	p.mu.Lock()
	instances := make([]*Instance, 0, len(p.agents))
	for _, inst := range p.agents {
		instances = append(instances, inst)
	}
	p.mu.Unlock()

	var reaped []string
	for _, inst := range instances {
		if !inst.Healthcheck() && inst.Status() == feature.AgentCrashed {
			reaped = append(reaped, inst.ID)
		}
	}

	if len(reaped) > 0 {
		p.mu.Lock()
		for _, id := range reaped {
			delete(p.agents, id)
		}
		p.mu.Unlock()

		sort.Strings(reaped)
		log.Printf("[pool] reaped crashed agents for %s: %v", p.cfg.ProjectName, reaped)
		p.publishPoolStatus()
	}
	return reaped
}

// Get returns a live instance by id.
func (p *Pool) Get(id string) (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.agents[id]
	return inst, ok
}

// Size returns the number of live agents.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

// GetStatus snapshots the pool: every agent plus per-status counts.
func (p *Pool) GetStatus() *Status {
	snaps := p.snapshots()

	st := &Status{
		ProjectName: p.cfg.ProjectName,
		MaxAgents:   p.cfg.MaxAgents,
		Agents:      snaps,
	}
	for _, s := range snaps {
		switch feature.AgentStatus(s.Status) {
		case feature.AgentIdle:
			st.IdleCount++
			st.ActiveCount++
		case feature.AgentWorking:
			st.WorkingCount++
			st.ActiveCount++
		case feature.AgentPaused:
			st.PausedCount++
			st.ActiveCount++
		}
	}
	return st
}

func (p *Pool) get(id string) (*Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.agents[id]
	if !ok {
		return nil, fmt.Errorf("no agent %s in pool for %s", id, p.cfg.ProjectName)
	}
	return inst, nil
}

// snapshots collects agent snapshots sorted by id, without holding the
// pool lock while talking to instances.
func (p *Pool) snapshots() []events.AgentSnapshot {
	p.mu.Lock()
	instances := make([]*Instance, 0, len(p.agents))
	for _, inst := range p.agents {
		instances = append(instances, inst)
	}
	p.mu.Unlock()

	snaps := make([]events.AgentSnapshot, 0, len(instances))
	for _, inst := range instances {
		snaps = append(snaps, inst.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].AgentID < snaps[j].AgentID })
	return snaps
}

// publishPoolStatus broadcasts the current composition. Never called
// with the pool lock held.
func (p *Pool) publishPoolStatus() {
	if p.cfg.Bus == nil {
		return
	}

	st := p.GetStatus()
	p.cfg.Bus.Publish(events.AgentPool{
		ProjectName:  st.ProjectName,
		Agents:       st.Agents,
		ActiveCount:  st.ActiveCount,
		IdleCount:    st.IdleCount,
		WorkingCount: st.WorkingCount,
	})
}
