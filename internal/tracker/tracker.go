// Package tracker maintains a fixed-capacity registry of in-flight
// file-processing work. Each worker owns one slot between Acquire and
// Release; slot ids are reused so memory stays bounded and progress
// displays get stable identities.
package tracker

import (
	"context"
	"fmt"
	"sync"
)

// SlotStatus is the lifecycle state of one tracked file.
type SlotStatus string

const (
	StatusProcessing SlotStatus = "processing"
	StatusComplete   SlotStatus = "complete"
)

// Slot describes one in-flight file. Snapshots hand out copies of this
// struct, never pointers into the live tracker.
type Slot struct {
	ID       int
	Filename string
	FileSize int64
	Status   SlotStatus
}

// Tracker is a thread-safe registry with a fixed number of slots.
type Tracker struct {
	mu    sync.Mutex
	slots []*Slot // nil = free
	free  chan int
	cap   int
}

// New creates a Tracker with maxSlots slots. maxSlots values below 1 are
// raised to 1.
func New(maxSlots int) *Tracker {
	if maxSlots < 1 {
		maxSlots = 1
	}
	t := &Tracker{
		slots: make([]*Slot, maxSlots),
		free:  make(chan int, maxSlots),
		cap:   maxSlots,
	}
	for i := 0; i < maxSlots; i++ {
		t.free <- i
	}
	return t
}

// Capacity returns the fixed slot count.
func (t *Tracker) Capacity() int {
	return t.cap
}

// Acquire blocks until a slot is free, then claims it for the given file.
// The returned slot id is exclusively owned by the caller until Release.
func (t *Tracker) Acquire(ctx context.Context, filename string, fileSize int64) (int, error) {
	select {
	case id := <-t.free:
		t.mu.Lock()
		t.slots[id] = &Slot{
			ID:       id,
			Filename: filename,
			FileSize: fileSize,
			Status:   StatusProcessing,
		}
		t.mu.Unlock()
		return id, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// TryAcquire claims a free slot without blocking. It returns -1 and false
// when all slots are occupied.
func (t *Tracker) TryAcquire(filename string, fileSize int64) (int, bool) {
	select {
	case id := <-t.free:
		t.mu.Lock()
		t.slots[id] = &Slot{
			ID:       id,
			Filename: filename,
			FileSize: fileSize,
			Status:   StatusProcessing,
		}
		t.mu.Unlock()
		return id, true
	default:
		return -1, false
	}
}

// Update changes the status of an occupied slot.
func (t *Tracker) Update(id int, status SlotStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= t.cap || t.slots[id] == nil {
		return fmt.Errorf("tracker: update of unoccupied slot %d", id)
	}
	t.slots[id].Status = status
	return nil
}

// Release frees an occupied slot, making its id available for reuse.
func (t *Tracker) Release(id int) error {
	t.mu.Lock()
	if id < 0 || id >= t.cap || t.slots[id] == nil {
		t.mu.Unlock()
		return fmt.Errorf("tracker: release of unoccupied slot %d", id)
	}
	t.slots[id] = nil
	t.mu.Unlock()
	t.free <- id
	return nil
}

// Snapshot returns an independent copy of all occupied slots, ordered by
// slot id. The copies share no state with the tracker: a consumer may hold
// a snapshot indefinitely without observing later mutations.
func (t *Tracker) Snapshot() []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Slot, 0, t.cap)
	for _, s := range t.slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// Active returns the number of occupied slots.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}
