// Package eventloop implements the manager's cooperative single-threaded
// reactor: a small, fixed protocol of Prepare/ShouldFire/Dispatch calls
// replacing the base-class subclassing of a conventional event-loop
// library. Every Source is driven from the same goroutine; a Source that
// needs a blocking syscall (accept, read) runs it on its own background
// goroutine and wakes the loop when something becomes ready, but only the
// loop goroutine itself is ever allowed to call Dispatch — the one place
// shared state (the journal, the transfer queue) is touched.
package eventloop

import (
	"context"
	"sync"

	"github.com/opencrash/crashmgr/internal/logger"
)

// Action is a Source's verdict on its own continued registration,
// returned by Dispatch.
type Action int

const (
	// Continue keeps the source registered for the next turn.
	Continue Action = iota
	// Remove unregisters the source; it will not be prepared or dispatched
	// again.
	Remove
)

// Source is one cooperative event source. Prepare runs every turn,
// unconditionally, so a source can cheaply poll a background channel
// without blocking. ShouldFire decides, from whatever Prepare just
// observed, whether Dispatch should run this turn. Dispatch performs
// exactly one unit of work and reports whether it should remain
// registered.
type Source interface {
	Name() string
	Prepare()
	ShouldFire() bool
	Dispatch() (Action, error)
}

// Loop is the manager's reactor: one turn evaluates every registered
// source in order, dispatching the ones that are ready. It is not safe
// for Run to be called from more than one goroutine, and it is the only
// goroutine expected to call any Source's Dispatch.
type Loop struct {
	wake chan struct{}

	mu      sync.Mutex
	sources []Source
}

// New returns an empty, unstarted loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Wake prods the loop into running another turn. Safe to call from any
// goroutine; typically called by a source's background I/O goroutine the
// moment it has something ready.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Add registers a source. Safe to call before Run, and safe to call from
// within a Dispatch (e.g. a listener source adding the client source it
// just accepted).
func (l *Loop) Add(s Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, s)
}

// Run drives the reactor until ctx is cancelled. Each wake-up runs one
// full pass over the registered sources; if that pass dispatched
// anything, another pass runs immediately (something may still be
// ready), otherwise the loop blocks until the next wake.
func (l *Loop) Run(ctx context.Context) error {
	l.Wake()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
		for l.turn() {
		}
	}
}

// turn evaluates every currently registered source once, removing any
// that asked to be. It returns true if anything fired, so Run knows to
// take another pass without waiting for a fresh wake-up.
func (l *Loop) turn() bool {
	l.mu.Lock()
	sources := make([]Source, len(l.sources))
	copy(sources, l.sources)
	l.mu.Unlock()

	fired := false
	kept := make([]Source, 0, len(sources))
	for _, s := range sources {
		s.Prepare()
		if !s.ShouldFire() {
			kept = append(kept, s)
			continue
		}
		fired = true
		action, err := s.Dispatch()
		if err != nil {
			logger.Warn("eventloop: source dispatch error", "source", s.Name(), logger.Err(err))
		}
		if action == Remove {
			continue
		}
		kept = append(kept, s)
	}

	l.mu.Lock()
	// Sources added during this turn's dispatches (via Add, from inside a
	// Dispatch call) were appended past the snapshot this turn started
	// with; preserve them rather than dropping them on the floor.
	added := l.sources[len(sources):]
	l.sources = append(kept, added...)
	l.mu.Unlock()

	return fired
}
