package pool

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalDirName is the per-project directory external tools drop
// signal files into (kill, pause). It lives next to the lock files.
const SignalDirName = "signals"

// SignalWatcher reacts to signal files under
// <project>/.agents/signals/. A watcher failure degrades to stat-based
// polling in ShouldStop/ShouldPause, so signals are never missed, just
// slower.
type SignalWatcher struct {
	signalsDir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates the signal directory and starts watching
// it.
func NewSignalWatcher(projectDir string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(projectDir, LockDirName, SignalDirName)
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Polling fallback only.
		return sw, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher

	go sw.watch()
	return sw, nil
}

func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			sw.mu.Lock()
			switch filepath.Base(event.Name) {
			case "kill":
				sw.stopSignal = true
			case "pause":
				sw.pauseSignal = true
			}
			sw.mu.Unlock()
		case <-sw.watcher.Errors:
			// Keep watching; the stat fallback covers missed events.
		}
	}
}

// ShouldStop reports whether a kill signal is present.
func (sw *SignalWatcher) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(sw.signalsDir, "kill")); err == nil {
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopSignal
}

// ShouldPause reports whether a pause signal is present.
func (sw *SignalWatcher) ShouldPause() bool {
	if _, err := os.Stat(filepath.Join(sw.signalsDir, "pause")); err == nil {
		sw.mu.Lock()
		sw.pauseSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.pauseSignal
}

// SendKill drops a kill signal file for other supervisors to see.
func (sw *SignalWatcher) SendKill() error {
	return os.WriteFile(filepath.Join(sw.signalsDir, "kill"),
		[]byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause drops a pause signal file.
func (sw *SignalWatcher) SendPause() error {
	return os.WriteFile(filepath.Join(sw.signalsDir, "pause"),
		[]byte(time.Now().Format(time.RFC3339)), 0644)
}

// agentKillPrefix prefixes per-agent kill files (kill-<agent-id>).
const agentKillPrefix = "kill-"

// SendAgentKill drops a kill signal for a single agent.
func (sw *SignalWatcher) SendAgentKill(agentID string) error {
	return os.WriteFile(filepath.Join(sw.signalsDir, agentKillPrefix+agentID),
		[]byte(time.Now().Format(time.RFC3339)), 0644)
}

// AgentKills lists the agent ids with a pending per-agent kill signal.
func (sw *SignalWatcher) AgentKills() []string {
	entries, err := os.ReadDir(sw.signalsDir)
	if err != nil {
		return nil
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, agentKillPrefix) && name != agentKillPrefix {
			ids = append(ids, strings.TrimPrefix(name, agentKillPrefix))
		}
	}
	return ids
}

// ClearAgentKill removes one agent's kill signal file.
func (sw *SignalWatcher) ClearAgentKill(agentID string) {
	os.Remove(filepath.Join(sw.signalsDir, agentKillPrefix+agentID))
}

// ClearSignals removes signal files and resets the flags.
func (sw *SignalWatcher) ClearSignals() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.stopSignal = false
	sw.pauseSignal = false
	os.Remove(filepath.Join(sw.signalsDir, "kill"))
	os.Remove(filepath.Join(sw.signalsDir, "pause"))

	if entries, err := os.ReadDir(sw.signalsDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasPrefix(e.Name(), agentKillPrefix) {
				os.Remove(filepath.Join(sw.signalsDir, e.Name()))
			}
		}
	}
}

// Close stops the watcher goroutine.
func (sw *SignalWatcher) Close() {
	close(sw.done)
	if sw.watcher != nil {
		sw.watcher.Close()
	}
}
