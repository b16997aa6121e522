// Package watch debounces container change notifications into classification
// flushes. Each watched container gets a Session running a two-state
// machine: Idle until a qualifying change arrives, PendingFlush while the
// quiescence timer is armed.
package watch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/listveil/listveil/pkg/interfaces"
)

// DefaultWindow is the quiescence window used when none is configured.
const DefaultWindow = 200 * time.Millisecond

// State is the session's position in the debounce cycle.
type State int

const (
	// StateIdle means no flush is scheduled.
	StateIdle State = iota
	// StatePendingFlush means a qualifying change armed the timer.
	StatePendingFlush
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingFlush:
		return "pending-flush"
	default:
		return "unknown"
	}
}

// Watcher turns bursts of container changes into single flush calls.
type Watcher struct {
	window time.Duration
	flush  func()
	logger *zap.Logger
}

// New creates a watcher that calls flush once per quiescent burst. A
// non-positive window falls back to DefaultWindow.
func New(window time.Duration, flush func(), logger *zap.Logger) *Watcher {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		window: window,
		flush:  flush,
		logger: logger,
	}
}

// Watch subscribes to the container and returns the live session.
func (w *Watcher) Watch(container interfaces.Container) *Session {
	s := &Session{
		watcher:   w,
		container: container,
	}
	s.subID = container.Subscribe(s.onChange)
	w.logger.Debug("watch session started", zap.Duration("window", w.window))
	return s
}

// Session is one container subscription with its debounce state.
type Session struct {
	watcher   *Watcher
	container interfaces.Container

	mu       sync.Mutex
	state    State
	timer    *time.Timer
	gen      uint64
	subID    interfaces.SubscriptionID
	disposed bool
}

// onChange restarts the quiescence window on every qualifying change.
// Removals and in-place edits do not qualify and leave the state untouched.
func (s *Session) onChange(change interfaces.Change) {
	if !change.Qualifies() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StatePendingFlush
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.watcher.window, func() { s.runFlush(gen) })
	s.watcher.logger.Debug("flush scheduled", zap.Int("added_items", change.AddedItems))
}

// runFlush fires the flush for the given timer generation. A timer that
// lost the race to a restart or a dispose must not flush.
func (s *Session) runFlush(gen uint64) {
	s.mu.Lock()
	if s.disposed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.timer = nil
	s.mu.Unlock()

	// The flush runs outside the lock so a change arriving mid-flush can
	// arm the next window.
	s.watcher.flush()
}

// State returns the current debounce state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether a flush is scheduled.
func (s *Session) Pending() bool {
	return s.State() == StatePendingFlush
}

// Dispose cancels any pending flush and unsubscribes from the container.
// It is idempotent; an in-flight flush completes, but nothing flushes
// afterwards.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = StateIdle
	container := s.container
	id := s.subID
	s.mu.Unlock()

	container.Unsubscribe(id)
	s.watcher.logger.Debug("watch session disposed")
}
