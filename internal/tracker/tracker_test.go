package tracker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireAssignsDistinctSlots(t *testing.T) {
	tr := New(3)
	ctx := context.Background()

	seen := make(map[int]bool)
	for i := 0; i < 3; i++ {
		id, err := tr.Acquire(ctx, "file", 10)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		if id < 0 || id >= 3 {
			t.Errorf("slot id %d out of range", id)
		}
		if seen[id] {
			t.Errorf("slot id %d handed out twice", id)
		}
		seen[id] = true
	}
}

func TestAcquireBlocksWhenFull(t *testing.T) {
	tr := New(1)
	ctx := context.Background()

	id, err := tr.Acquire(ctx, "a.go", 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, ok := tr.TryAcquire("b.go", 1); ok {
		t.Fatal("TryAcquire should fail when all slots are occupied")
	}

	// A blocked Acquire must wake up when the slot is released.
	done := make(chan int, 1)
	go func() {
		id2, err := tr.Acquire(ctx, "b.go", 1)
		if err != nil {
			done <- -1
			return
		}
		done <- id2
	}()

	time.Sleep(20 * time.Millisecond)
	if err := tr.Release(id); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	select {
	case id2 := <-done:
		if id2 != id {
			t.Errorf("released slot id %d should be reused, got %d", id, id2)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Acquire never woke up after Release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	tr := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := tr.Acquire(ctx, "a.go", 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Acquire(ctx, "b.go", 1)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected context error from cancelled Acquire")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Acquire did not return")
	}
}

func TestSnapshotIndependence(t *testing.T) {
	tr := New(2)
	ctx := context.Background()

	id, err := tr.Acquire(ctx, "main.go", 123)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 occupied slot in snapshot, got %d", len(snap))
	}
	if snap[0].Status != StatusProcessing {
		t.Fatalf("expected processing status, got %q", snap[0].Status)
	}

	// Mutations after the snapshot must not leak into it.
	if err := tr.Update(id, StatusComplete); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := tr.Release(id); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := tr.Acquire(ctx, "other.go", 999); err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}

	if snap[0].Status != StatusProcessing {
		t.Errorf("snapshot mutated: status became %q", snap[0].Status)
	}
	if snap[0].Filename != "main.go" {
		t.Errorf("snapshot mutated: filename became %q", snap[0].Filename)
	}
	if snap[0].FileSize != 123 {
		t.Errorf("snapshot mutated: size became %d", snap[0].FileSize)
	}
}

func TestUpdateAndReleaseValidation(t *testing.T) {
	tr := New(2)

	if err := tr.Update(0, StatusComplete); err == nil {
		t.Error("Update of a free slot should fail")
	}
	if err := tr.Release(0); err == nil {
		t.Error("Release of a free slot should fail")
	}
	if err := tr.Release(99); err == nil {
		t.Error("Release of an out-of-range slot should fail")
	}
}

func TestConcurrentAcquireReleaseNeverDoubleOwns(t *testing.T) {
	tr := New(4)
	ctx := context.Background()

	var mu sync.Mutex
	owned := make(map[int]int) // slot id -> owner count

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := tr.Acquire(ctx, "f", 1)
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				mu.Lock()
				owned[id]++
				if owned[id] > 1 {
					t.Errorf("slot %d owned by %d workers at once", id, owned[id])
				}
				mu.Unlock()

				mu.Lock()
				owned[id]--
				mu.Unlock()
				if err := tr.Release(id); err != nil {
					t.Errorf("Release failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := tr.Active(); got != 0 {
		t.Errorf("expected no active slots after test, got %d", got)
	}
}
