package rebuild

import (
	"sync"
	"sync/atomic"
)

// collectionLock provides non-blocking lock semantics using atomic
// operations. At most one rebuild per collection path may hold it.
type collectionLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// tryAcquire attempts to acquire the lock without blocking.
func (l *collectionLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release releases the lock. Must only be called by the holder.
func (l *collectionLock) release() {
	l.state.Store(0)
}

// lockRegistry maps collection paths to their rebuild locks, so unrelated
// collections rebuild independently. Looking up and creating a lock is a
// single operation under the registry mutex; the check-then-act lives
// inside the CAS of the lock itself.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*collectionLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*collectionLock)}
}

func (r *lockRegistry) lockFor(path string) *collectionLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[path]
	if !ok {
		l = &collectionLock{}
		r.locks[path] = l
	}
	return l
}
