package pool

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"hive/internal/events"
	"hive/internal/feature"
)

const (
	// LockDirName holds per-agent PID lock files under the project root.
	LockDirName = ".agents"

	// stopGrace is how long Stop waits after SIGTERM before SIGKILL.
	stopGrace = 5 * time.Second

	// authRingSize is the number of unredacted tail lines kept for
	// exit-time auth diagnosis.
	authRingSize = 20
)

// InstanceConfig configures one agent subprocess.
type InstanceConfig struct {
	ProjectName string
	ProjectDir  string
	// Binary is the agent executable to launch.
	Binary string
	Model  string
	Yolo   bool
	Store  *feature.Store
	Bus    *events.Bus
}

// Instance is one supervised agent subprocess. All state transitions
// happen under mu; the streaming goroutine owns exit reconciliation.
type Instance struct {
	ID string

	projectName string
	projectDir  string
	binary      string
	model       string
	yolo        bool
	store       *feature.Store
	bus         *events.Bus

	mu               sync.Mutex
	status           feature.AgentStatus
	cmd              *exec.Cmd
	pid              int
	startedAt        time.Time
	currentFeatureID *int64

	// streamDone closes after exit reconciliation finishes.
	streamDone chan struct{}
}

// NewInstance allocates an instance with a fresh 8-character id. The
// subprocess is not started until Start.
func NewInstance(cfg InstanceConfig) *Instance {
	return &Instance{
		ID:          uuid.New().String()[:8],
		projectName: cfg.ProjectName,
		projectDir:  cfg.ProjectDir,
		binary:      cfg.Binary,
		model:       cfg.Model,
		yolo:        cfg.Yolo,
		store:       cfg.Store,
		bus:         cfg.Bus,
		status:      feature.AgentStopped,
	}
}

// Status returns the current lifecycle state.
func (i *Instance) Status() feature.AgentStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Snapshot captures the instance state for pool-status events.
func (i *Instance) Snapshot() events.AgentSnapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	snap := events.AgentSnapshot{
		AgentID:          i.ID,
		Status:           string(i.status),
		PID:              i.pid,
		Model:            i.model,
		YoloMode:         i.yolo,
		CurrentFeatureID: i.currentFeatureID,
	}
	if !i.startedAt.IsZero() {
		t := i.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// Start launches the agent binary with the project directory as its
// working directory, AGENT_ID in the environment, and stdout+stderr
// merged into one pipe. On success the instance is idle, its lock file
// names the child PID, and a streaming goroutine drains output.
func (i *Instance) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.status {
	case feature.AgentIdle, feature.AgentWorking, feature.AgentPaused:
		return fmt.Errorf("agent %s is already %s", i.ID, i.status)
	}

	args := []string{"--project-dir", i.projectDir, "--model", i.model}
	if i.yolo {
		args = append(args, "--yolo")
	}

	cmd := exec.Command(i.binary, args...)
	cmd.Dir = i.projectDir
	cmd.Env = append(os.Environ(), "AGENT_ID="+i.ID)

	// One pipe carries both streams so output ordering is preserved.
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("start agent %s: %w", i.ID, err)
	}
	// The child holds the write end now.
	pw.Close()

	i.cmd = cmd
	i.pid = cmd.Process.Pid
	i.status = feature.AgentIdle
	i.startedAt = time.Now().UTC()
	i.currentFeatureID = nil
	i.streamDone = make(chan struct{})

	if err := i.writeLock(); err != nil {
		log.Printf("[pool] write lock for agent %s: %v", i.ID, err)
	}

	now := i.startedAt
	if err := i.store.RegisterAgent(&feature.Agent{
		AgentID:     i.ID,
		ProjectName: i.projectName,
		Status:      feature.AgentIdle,
		Model:       i.model,
		YoloMode:    i.yolo,
		PID:         i.pid,
		CreatedAt:   now,
		StartedAt:   &now,
	}); err != nil {
		log.Printf("[pool] register agent %s: %v", i.ID, err)
	}

	go i.stream(pr)

	i.publishStatus(feature.AgentIdle, nil)
	log.Printf("[pool] started agent %s (pid %d, model %s)", i.ID, i.pid, i.model)
	return nil
}

// stream drains the combined output pipe line by line: redact,
// auth-detect, broadcast, then reconcile the exit.
func (i *Instance) stream(pr *os.File) {
	defer pr.Close()

	ring := newLineRing(authRingSize)
	authSeen := false

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		ring.add(raw)

		// The banner goes out before the line that triggered it, and
		// only once per process.
		if !authSeen && IsAuthError(raw) {
			authSeen = true
			i.publishBanner()
		}
		i.publishLine(Sanitize(raw))
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[pool] stream agent %s: %v", i.ID, err)
	}

	err := i.cmd.Wait()
	exitCode := 0
	if err != nil {
		exitCode = i.cmd.ProcessState.ExitCode()
	}

	i.reconcileExit(exitCode, authSeen, ring)
}

// reconcileExit flips the logical status based on the exit code,
// removes the lock file, and records the outcome.
func (i *Instance) reconcileExit(exitCode int, authSeen bool, ring *lineRing) {
	i.mu.Lock()

	var final feature.AgentStatus
	switch i.status {
	case feature.AgentIdle, feature.AgentWorking:
		if exitCode != 0 {
			if !authSeen && IsAuthError(ring.joined()) {
				i.publishBanner()
			}
			final = feature.AgentCrashed
		} else {
			final = feature.AgentStopped
		}
		i.status = final
	default:
		// Stop or a pause-time crash already set the terminal state.
		final = i.status
	}

	i.removeLock()
	i.currentFeatureID = nil
	done := i.streamDone
	i.mu.Unlock()

	if final == feature.AgentCrashed {
		if err := i.store.UpdateAgentStatus(i.ID, feature.AgentCrashed, nil); err != nil {
			log.Printf("[pool] record crash for agent %s: %v", i.ID, err)
		}
		log.Printf("[pool] agent %s crashed (exit code %d)", i.ID, exitCode)
	}

	i.publishStatus(final, nil)
	close(done)
}

// Stop terminates the subprocess: SIGTERM, a 5 second grace period,
// then SIGKILL. The lock file and DB row are removed.
func (i *Instance) Stop() error {
	i.mu.Lock()
	switch i.status {
	case feature.AgentStopped, feature.AgentCrashed:
		i.mu.Unlock()
		return fmt.Errorf("agent %s is already %s", i.ID, i.status)
	}

	// Setting the terminal state first keeps exit reconciliation from
	// reporting a crash for a deliberate stop.
	i.status = feature.AgentStopped
	proc := i.cmd.Process
	done := i.streamDone
	i.mu.Unlock()

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Already gone; the stream goroutine will finish up.
		log.Printf("[pool] terminate agent %s: %v", i.ID, err)
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Printf("[pool] agent %s did not exit within %s, killing", i.ID, stopGrace)
		proc.Kill()
		<-done
	}

	if err := i.store.DeleteAgent(i.ID); err != nil {
		log.Printf("[pool] delete agent row %s: %v", i.ID, err)
	}

	i.publishStatus(feature.AgentStopped, nil)
	log.Printf("[pool] stopped agent %s", i.ID)
	return nil
}

// Pause suspends the subprocess with SIGSTOP. A vanished process is
// reconciled to crashed.
func (i *Instance) Pause() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.status {
	case feature.AgentIdle, feature.AgentWorking:
	default:
		return fmt.Errorf("cannot pause agent %s while %s", i.ID, i.status)
	}

	if err := syscall.Kill(i.pid, syscall.SIGSTOP); err != nil {
		i.markCrashedLocked()
		return fmt.Errorf("agent %s process is gone: %w", i.ID, err)
	}

	i.status = feature.AgentPaused
	if err := i.store.UpdateAgentStatus(i.ID, feature.AgentPaused, i.currentFeatureID); err != nil {
		log.Printf("[pool] record pause for agent %s: %v", i.ID, err)
	}
	i.publishStatus(feature.AgentPaused, i.currentFeatureID)
	return nil
}

// Resume continues a paused subprocess with SIGCONT.
func (i *Instance) Resume() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status != feature.AgentPaused {
		return fmt.Errorf("cannot resume agent %s while %s", i.ID, i.status)
	}

	if err := syscall.Kill(i.pid, syscall.SIGCONT); err != nil {
		i.markCrashedLocked()
		return fmt.Errorf("agent %s process is gone: %w", i.ID, err)
	}

	i.status = feature.AgentIdle
	if err := i.store.UpdateAgentStatus(i.ID, feature.AgentIdle, i.currentFeatureID); err != nil {
		log.Printf("[pool] record resume for agent %s: %v", i.ID, err)
	}
	i.publishStatus(feature.AgentIdle, i.currentFeatureID)
	return nil
}

// Healthcheck verifies process liveness. Returns false after flipping
// a dead-but-logically-alive agent to crashed.
func (i *Instance) Healthcheck() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.status {
	case feature.AgentIdle, feature.AgentWorking, feature.AgentPaused:
	default:
		return false
	}

	if err := syscall.Kill(i.pid, 0); err != nil {
		i.markCrashedLocked()
		return false
	}
	return true
}

// SetWorking records that the agent claimed a feature.
func (i *Instance) SetWorking(featureID int64) {
	i.mu.Lock()
	i.status = feature.AgentWorking
	i.currentFeatureID = &featureID
	i.mu.Unlock()

	if err := i.store.UpdateAgentStatus(i.ID, feature.AgentWorking, &featureID); err != nil {
		log.Printf("[pool] record working for agent %s: %v", i.ID, err)
	}
	i.publishStatus(feature.AgentWorking, &featureID)
}

// SetIdle records that the agent finished its feature.
func (i *Instance) SetIdle() {
	i.mu.Lock()
	i.status = feature.AgentIdle
	i.currentFeatureID = nil
	i.mu.Unlock()

	if err := i.store.UpdateAgentStatus(i.ID, feature.AgentIdle, nil); err != nil {
		log.Printf("[pool] record idle for agent %s: %v", i.ID, err)
	}
	i.publishStatus(feature.AgentIdle, nil)
}

// markCrashedLocked flips to crashed and removes the lock. Caller
// holds mu.
func (i *Instance) markCrashedLocked() {
	i.status = feature.AgentCrashed
	i.removeLock()
	if err := i.store.UpdateAgentStatus(i.ID, feature.AgentCrashed, nil); err != nil {
		log.Printf("[pool] record crash for agent %s: %v", i.ID, err)
	}
}

// LockPath returns the instance's PID lock file path.
func (i *Instance) LockPath() string {
	return filepath.Join(i.projectDir, LockDirName, i.ID+".lock")
}

func (i *Instance) writeLock() error {
	dir := filepath.Join(i.projectDir, LockDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(i.LockPath(), []byte(strconv.Itoa(i.pid)), 0644)
}

func (i *Instance) removeLock() {
	if err := os.Remove(i.LockPath()); err != nil && !os.IsNotExist(err) {
		log.Printf("[pool] remove lock for agent %s: %v", i.ID, err)
	}
}

func (i *Instance) publishLine(line string) {
	if i.bus != nil {
		i.bus.Publish(events.AgentLog{AgentID: i.ID, Line: line, Timestamp: time.Now().UTC()})
	}
}

func (i *Instance) publishBanner() {
	for _, line := range AuthHelpBanner {
		i.publishLine(line)
	}
}

// publishStatus emits a lifecycle event. Publish never blocks, so
// calling this with mu held is fine.
func (i *Instance) publishStatus(status feature.AgentStatus, featureID *int64) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(events.AgentInstanceStatus{AgentID: i.ID, Status: string(status), FeatureID: featureID})
}
