package debugger

import (
	"sync"
	"time"
)

// DefaultPollInterval bounds how long a parked goroutine goes without
// re-checking its proceed condition.
const DefaultPollInterval = 50 * time.Millisecond

// Gate parks the execution goroutine. It is open while the session is marked
// executing; a parked goroutine is woken by Resume, Signal or Terminate, and
// re-checks its condition at least once per poll interval.
type Gate struct {
	poll time.Duration

	mu        sync.Mutex
	executing bool

	wake     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewGate creates a gate. A non-positive poll uses DefaultPollInterval.
func NewGate(executing bool, poll time.Duration) *Gate {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Gate{
		poll:      poll,
		executing: executing,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Executing reports whether the session is marked executing.
func (g *Gate) Executing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executing
}

// Hold marks the session as not executing.
func (g *Gate) Hold() {
	g.mu.Lock()
	g.executing = false
	g.mu.Unlock()
}

// Resume marks the session as executing and wakes a parked goroutine.
func (g *Gate) Resume() {
	g.mu.Lock()
	g.executing = true
	g.mu.Unlock()
	g.Signal()
}

// Signal wakes a parked goroutine so it re-checks its condition.
func (g *Gate) Signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Terminate releases any parked goroutine for good. It is idempotent.
func (g *Gate) Terminate() {
	g.doneOnce.Do(func() {
		close(g.done)
	})
}

// Terminated reports whether Terminate was called.
func (g *Gate) Terminated() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Done is closed on termination.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the session is executing, proceed reports true, or the
// gate is terminated, in which case it returns ErrSessionTerminated.
func (g *Gate) Wait(proceed func() bool) error {
	var ticker *time.Ticker
	for {
		if g.Terminated() {
			return ErrSessionTerminated
		}
		if g.Executing() || (proceed != nil && proceed()) {
			return nil
		}
		if ticker == nil {
			ticker = time.NewTicker(g.poll)
			defer ticker.Stop()
		}
		select {
		case <-g.done:
		case <-g.wake:
		case <-ticker.C:
		}
	}
}
