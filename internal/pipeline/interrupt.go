package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// Interrupter turns interrupt signals into a two-stage shutdown. The
// first signal sets a flag; workers finish their current file's ledger
// write and stop pulling new work. A second signal forces immediate
// termination, as does a graceful shutdown that drags on past the
// configured limit.
type Interrupter struct {
	grace time.Duration
	limit time.Duration
	force func()

	interrupted atomic.Bool
	mu          sync.Mutex
	firstAt     time.Time
	limitTimer  *time.Timer
}

// NewInterrupter creates an Interrupter. force is invoked at most once,
// when a forced termination is required; it typically cancels the
// pipeline's root context.
func NewInterrupter(grace, limit time.Duration, force func()) *Interrupter {
	var once sync.Once
	return &Interrupter{
		grace: grace,
		limit: limit,
		force: func() { once.Do(force) },
	}
}

// Interrupted reports whether a graceful shutdown was requested. Workers
// check this between files.
func (i *Interrupter) Interrupted() bool {
	return i.interrupted.Load()
}

// Grace returns the window within which a repeated signal forces
// termination; outer layers use it for the "press again to force" hint.
func (i *Interrupter) Grace() time.Duration {
	return i.grace
}

// Signal records one interrupt delivery. It returns true when this
// signal forced termination.
func (i *Interrupter) Signal() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.interrupted.CompareAndSwap(false, true) {
		i.firstAt = time.Now()
		i.limitTimer = time.AfterFunc(i.limit, i.force)
		return false
	}

	// Repeat signal. Anything past the first forces; the grace window
	// only distinguishes an impatient operator from signal queues that
	// deliver the same keypress twice within a few milliseconds.
	if time.Since(i.firstAt) < 50*time.Millisecond {
		return false
	}
	i.force()
	return true
}

// Stop releases the force timer after a clean shutdown.
func (i *Interrupter) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.limitTimer != nil {
		i.limitTimer.Stop()
		i.limitTimer = nil
	}
}
