// Package ratelimit gates calls to the embedding provider with a dual
// token bucket: one bucket counts requests per minute, the other counts
// embedding tokens per minute. Consumption is settled after the provider
// reports actual token usage, so concurrent callers can drive a bucket
// negative; the debt is clamped at minus one full capacity per dimension,
// which bounds the worst-case recovery wait to a single refill period.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MaxWait is the upper bound on any single wait computed by the
// dispatcher, regardless of how deep concurrent callers drove the debt.
const MaxWait = 120 * time.Second

// pollInterval is how long Acquire sleeps between bucket checks.
const pollInterval = 100 * time.Millisecond

// Dispatcher is a dual token-bucket rate limiter. The token dimension is
// optional: with tokensPerMinute of zero only the request dimension gates
// calls and token debt stays at zero.
type Dispatcher struct {
	mu sync.Mutex

	reqTokens   float64
	reqCapacity float64
	reqLast     time.Time

	tokTokens   float64
	tokCapacity float64 // 0 = token dimension disabled
	tokLast     time.Time

	now func() time.Time // overridable for tests
}

// NewDispatcher creates a Dispatcher allowing at most requestsPerMinute
// requests and tokensPerMinute embedding tokens per minute. Both buckets
// start full. requestsPerMinute values below 1 are raised to 1.
func NewDispatcher(requestsPerMinute, tokensPerMinute int) *Dispatcher {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if tokensPerMinute < 0 {
		tokensPerMinute = 0
	}
	now := time.Now()
	return &Dispatcher{
		reqTokens:   float64(requestsPerMinute),
		reqCapacity: float64(requestsPerMinute),
		reqLast:     now,
		tokTokens:   float64(tokensPerMinute),
		tokCapacity: float64(tokensPerMinute),
		tokLast:     now,
		now:         time.Now,
	}
}

// refillLocked tops up both buckets based on elapsed time. Callers must
// hold d.mu.
func (d *Dispatcher) refillLocked() {
	now := d.now()

	if elapsed := now.Sub(d.reqLast); elapsed > 0 {
		d.reqTokens += elapsed.Seconds() * d.reqCapacity / 60.0
		if d.reqTokens > d.reqCapacity {
			d.reqTokens = d.reqCapacity
		}
		d.reqLast = now
	}

	if d.tokCapacity > 0 {
		if elapsed := now.Sub(d.tokLast); elapsed > 0 {
			d.tokTokens += elapsed.Seconds() * d.tokCapacity / 60.0
			if d.tokTokens > d.tokCapacity {
				d.tokTokens = d.tokCapacity
			}
			d.tokLast = now
		}
	}
}

// effectiveTokensLocked clamps an estimate to the token bucket capacity.
// An estimate larger than one full bucket could otherwise never be
// admitted: such a call goes through once the bucket is full, and Consume
// settles the overshoot as bounded debt afterwards. Callers must hold
// d.mu.
func (d *Dispatcher) effectiveTokensLocked(estimatedTokens int) float64 {
	need := float64(estimatedTokens)
	if d.tokCapacity > 0 && need > d.tokCapacity {
		need = d.tokCapacity
	}
	return need
}

// canProceedLocked reports whether both dimensions admit a call that is
// estimated to cost estimatedTokens. Callers must hold d.mu.
func (d *Dispatcher) canProceedLocked(estimatedTokens int) bool {
	if d.reqTokens < 1 {
		return false
	}
	if d.tokCapacity > 0 && d.tokTokens < d.effectiveTokensLocked(estimatedTokens) {
		return false
	}
	return true
}

// CanProceed reports whether a call estimated at estimatedTokens would be
// admitted right now, without consuming anything.
func (d *Dispatcher) CanProceed(estimatedTokens int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refillLocked()
	return d.canProceedLocked(estimatedTokens)
}

// WaitTime returns how long a caller would have to wait before a call
// estimated at estimatedTokens is admitted. The result never exceeds
// MaxWait: estimates are clamped to capacity and debt is clamped at
// -capacity, so one full refill period from maximum debt always suffices.
func (d *Dispatcher) WaitTime(estimatedTokens int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refillLocked()

	var wait time.Duration

	if deficit := 1 - d.reqTokens; deficit > 0 {
		perSecond := d.reqCapacity / 60.0
		w := time.Duration(deficit / perSecond * float64(time.Second))
		if w > wait {
			wait = w
		}
	}

	if d.tokCapacity > 0 {
		if deficit := d.effectiveTokensLocked(estimatedTokens) - d.tokTokens; deficit > 0 {
			perSecond := d.tokCapacity / 60.0
			w := time.Duration(deficit / perSecond * float64(time.Second))
			if w > wait {
				wait = w
			}
		}
	}

	if wait > MaxWait {
		wait = MaxWait
	}
	return wait
}

// Acquire blocks until both buckets admit a call estimated at
// estimatedTokens, then deducts one request token. It returns the total
// time spent waiting. Estimates above the bucket capacity are admitted as
// soon as the bucket is full, so no input can stall a caller past one
// refill period. The token cost is settled later via Consume once the
// provider reports actual usage.
func (d *Dispatcher) Acquire(ctx context.Context, estimatedTokens int) (time.Duration, error) {
	start := d.now()
	for {
		d.mu.Lock()
		d.refillLocked()
		if d.canProceedLocked(estimatedTokens) {
			d.reqTokens--
			if d.reqTokens < -d.reqCapacity {
				d.reqTokens = -d.reqCapacity
			}
			d.mu.Unlock()
			return d.now().Sub(start), nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return d.now().Sub(start), ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Consume settles the actual token cost of a completed call. The token
// bucket may go negative when concurrent callers over-committed, but never
// below -capacity. With the token dimension disabled this is a no-op.
func (d *Dispatcher) Consume(actualTokens int) {
	if actualTokens <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tokCapacity == 0 {
		return
	}
	d.refillLocked()
	d.tokTokens -= float64(actualTokens)
	if d.tokTokens < -d.tokCapacity {
		d.tokTokens = -d.tokCapacity
	}
}

// Debt returns the current request and token debt as non-positive numbers
// (zero when the bucket is non-negative). Exposed for progress reporting.
func (d *Dispatcher) Debt() (requestDebt, tokenDebt float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refillLocked()
	if d.reqTokens < 0 {
		requestDebt = d.reqTokens
	}
	if d.tokTokens < 0 {
		tokenDebt = d.tokTokens
	}
	return requestDebt, tokenDebt
}
