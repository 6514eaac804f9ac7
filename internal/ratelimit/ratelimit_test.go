package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDispatcher(rpm, tpm int) (*Dispatcher, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := NewDispatcher(rpm, tpm)
	d.now = clock.Now
	d.reqLast = clock.Now()
	d.tokLast = clock.Now()
	return d, clock
}

func TestCanProceedFullBuckets(t *testing.T) {
	d, _ := newTestDispatcher(60, 1000)
	if !d.CanProceed(500) {
		t.Error("full buckets should admit a call")
	}
	// Estimates above capacity are clamped: a full bucket admits them,
	// a drained one does not.
	if !d.CanProceed(1001) {
		t.Error("full bucket should admit an estimate above capacity")
	}
	d.Consume(1)
	if d.CanProceed(1001) {
		t.Error("partially drained bucket should not admit an estimate above capacity")
	}
}

func TestAcquireAdmitsEstimateAboveCapacity(t *testing.T) {
	d, _ := newTestDispatcher(1000, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := d.Acquire(ctx, 200); err != nil {
		t.Fatalf("estimate above capacity must be admitted from a full bucket, got %v", err)
	}
}

func TestOversizedEstimateAdmittedAfterFullRefill(t *testing.T) {
	d, clock := newTestDispatcher(60, 100)

	d.Consume(100)
	if d.CanProceed(200) {
		t.Fatal("drained bucket should not admit yet")
	}

	// One refill period covers the clamped estimate; the computed wait
	// must agree with when admission actually happens.
	if w := d.WaitTime(200); w > 60*time.Second {
		t.Errorf("WaitTime %v exceeds one refill period for a clamped estimate", w)
	}
	clock.Advance(60 * time.Second)
	if !d.CanProceed(200) {
		t.Error("full bucket must admit an estimate above capacity after refill")
	}
}

func TestConsumeBoundedDebt(t *testing.T) {
	d, _ := newTestDispatcher(60, 1000)

	// Massively over-consume: debt must clamp at -capacity.
	for i := 0; i < 50; i++ {
		d.Consume(100_000)
	}
	if d.tokTokens < -1000 {
		t.Errorf("token debt %f exceeds -capacity bound -1000", d.tokTokens)
	}

	_, tokenDebt := d.Debt()
	if tokenDebt < -1000 {
		t.Errorf("Debt reports %f, below -capacity", tokenDebt)
	}
}

func TestRequestDebtBoundedAtMinusCapacity(t *testing.T) {
	d, _ := newTestDispatcher(1, 0)
	ctx := context.Background()

	// rpm=1: the single token admits one call; debt may never go below -1.
	if _, err := d.Acquire(ctx, 0); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if d.reqTokens < -1 {
		t.Errorf("request debt %f below -1 with rpm=1", d.reqTokens)
	}
}

func TestWaitTimeNeverExceedsCap(t *testing.T) {
	d, _ := newTestDispatcher(1, 1)

	// Drive both buckets to their maximum debt.
	d.mu.Lock()
	d.reqTokens = -d.reqCapacity
	d.tokTokens = -d.tokCapacity
	d.mu.Unlock()

	if w := d.WaitTime(1_000_000); w > MaxWait {
		t.Errorf("WaitTime %v exceeds cap %v", w, MaxWait)
	}
}

func TestWaitTimeZeroWhenAdmissible(t *testing.T) {
	d, _ := newTestDispatcher(60, 1000)
	if w := d.WaitTime(10); w != 0 {
		t.Errorf("expected zero wait with full buckets, got %v", w)
	}
}

func TestRefillRestoresTokens(t *testing.T) {
	d, clock := newTestDispatcher(60, 600)

	d.Consume(600)
	if d.CanProceed(600) {
		t.Fatal("exhausted token bucket should not admit a 600-token call")
	}

	// 60 seconds refills the full token capacity.
	clock.Advance(60 * time.Second)
	if !d.CanProceed(600) {
		t.Error("token bucket should be full again after one refill period")
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	d, clock := newTestDispatcher(60, 1000)
	clock.Advance(10 * time.Minute)
	d.mu.Lock()
	d.refillLocked()
	if d.reqTokens > d.reqCapacity {
		t.Errorf("request bucket overfilled: %f > %f", d.reqTokens, d.reqCapacity)
	}
	if d.tokTokens > d.tokCapacity {
		t.Errorf("token bucket overfilled: %f > %f", d.tokTokens, d.tokCapacity)
	}
	d.mu.Unlock()
}

func TestDisabledTokenDimension(t *testing.T) {
	d, _ := newTestDispatcher(60, 0)

	// With tpm=0 consumption is a no-op and token debt stays zero.
	d.Consume(1_000_000)
	_, tokenDebt := d.Debt()
	if tokenDebt != 0 {
		t.Errorf("disabled token dimension should have zero debt, got %f", tokenDebt)
	}
	if !d.CanProceed(1_000_000) {
		t.Error("disabled token dimension should never gate on tokens")
	}
}

func TestAcquireConsumesRequestToken(t *testing.T) {
	d, _ := newTestDispatcher(60, 0)
	ctx := context.Background()

	before := d.reqTokens
	if _, err := d.Acquire(ctx, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if d.reqTokens != before-1 {
		t.Errorf("Acquire should deduct one request token: before %f, after %f", before, d.reqTokens)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	d, _ := newTestDispatcher(1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	// Exhaust the single request token.
	if _, err := d.Acquire(ctx, 0); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.Acquire(ctx, 0)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected context error from cancelled Acquire")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Acquire did not return")
	}
}

func TestConcurrentConsumeStaysBounded(t *testing.T) {
	d, _ := newTestDispatcher(10, 100)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Consume(1000)
			}
		}()
	}
	wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tokTokens < -d.tokCapacity {
		t.Errorf("concurrent over-consumption drove debt to %f, below -%f", d.tokTokens, d.tokCapacity)
	}
}
