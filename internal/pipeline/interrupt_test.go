package pipeline

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestInterrupterFirstSignalIsGraceful(t *testing.T) {
	var forced atomic.Bool
	i := NewInterrupter(3*time.Second, time.Minute, func() { forced.Store(true) })

	if i.Interrupted() {
		t.Fatal("fresh interrupter should not be interrupted")
	}
	if i.Signal() {
		t.Error("first signal should not force")
	}
	if !i.Interrupted() {
		t.Error("first signal should set the interrupted flag")
	}
	if forced.Load() {
		t.Error("first signal should not invoke force")
	}
	i.Stop()
}

func TestInterrupterSecondSignalForces(t *testing.T) {
	var forced atomic.Bool
	i := NewInterrupter(3*time.Second, time.Minute, func() { forced.Store(true) })

	i.Signal()
	time.Sleep(60 * time.Millisecond) // past the duplicate-delivery debounce
	if !i.Signal() {
		t.Error("second signal should force")
	}
	if !forced.Load() {
		t.Error("second signal should invoke force")
	}
	i.Stop()
}

func TestInterrupterDebouncesDuplicateDelivery(t *testing.T) {
	var forced atomic.Bool
	i := NewInterrupter(3*time.Second, time.Minute, func() { forced.Store(true) })

	i.Signal()
	if i.Signal() { // immediate duplicate, same keypress
		t.Error("duplicate delivery within debounce should not force")
	}
	if forced.Load() {
		t.Error("debounced signal should not invoke force")
	}
	i.Stop()
}

func TestInterrupterForcesAfterLimit(t *testing.T) {
	var forced atomic.Bool
	i := NewInterrupter(3*time.Second, 30*time.Millisecond, func() { forced.Store(true) })

	i.Signal()
	deadline := time.Now().Add(time.Second)
	for !forced.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !forced.Load() {
		t.Error("unacknowledged interrupt should force after the limit")
	}
	i.Stop()
}

func TestInterrupterForceRunsOnce(t *testing.T) {
	var count atomic.Int32
	i := NewInterrupter(3*time.Second, 20*time.Millisecond, func() { count.Add(1) })

	i.Signal()
	time.Sleep(60 * time.Millisecond)
	i.Signal() // escalate after the timer already fired
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("expected force to run exactly once, ran %d times", got)
	}
	i.Stop()
}
