package feature

import (
	"sync"
	"time"
)

// Rate limit for successful mark-passing commits. The check happens at
// the top of MarkPassing, but a timestamp is recorded only after the
// commit succeeds, so rejected attempts never consume window slots.
const (
	MaxMarksPerWindow = 3
	MarkWindow        = 5 * time.Minute
)

// MarkLimiter is a process-wide sliding window over successful
// mark-passing calls. It uses wall-clock time.
type MarkLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	marks  []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewMarkLimiter creates a limiter allowing 3 marks per 5 minutes.
func NewMarkLimiter() *MarkLimiter {
	return &MarkLimiter{
		window: MarkWindow,
		max:    MaxMarksPerWindow,
		now:    time.Now,
	}
}

// defaultMarkLimiter backs every Queue that does not supply its own
// limiter, so the cap holds across all queues in one process.
var defaultMarkLimiter = NewMarkLimiter()

// DefaultMarkLimiter returns the process-wide limiter. Reset it on
// supervisor teardown.
func DefaultMarkLimiter() *MarkLimiter {
	return defaultMarkLimiter
}

// Check prunes expired timestamps and reports whether another mark is
// allowed right now. When not allowed, wait is the time until the
// oldest timestamp leaves the window.
func (l *MarkLimiter) Check() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.marks) < l.max {
		return 0, true
	}

	oldest := l.marks[0]
	return l.window - now.Sub(oldest), false
}

// Record registers a successful mark. Call only after the transition
// commits.
func (l *MarkLimiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = append(l.marks, l.now())
}

// Reset drops the timestamp window. Used on supervisor teardown.
func (l *MarkLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = nil
}

// prune discards timestamps older than the window. Caller holds the lock.
func (l *MarkLimiter) prune(now time.Time) {
	kept := l.marks[:0]
	for _, t := range l.marks {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}
	l.marks = kept
}
