// Package testutil provides test doubles for the cache and its sources.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is a manually advanced clock. Its Now method can be passed as
// cache.Config.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// FixedProbe reports a configurable amount of available memory.
type FixedProbe struct {
	available atomic.Uint64
	fail      atomic.Bool
}

// NewFixedProbe creates a probe reporting available bytes.
func NewFixedProbe(available uint64) *FixedProbe {
	p := &FixedProbe{}
	p.available.Store(available)
	return p
}

// ErrProbeFailed is returned by FixedProbe after Fail(true).
var ErrProbeFailed = errors.New("probe failed")

// Available implements cache.MemoryProbe.
func (p *FixedProbe) Available() (uint64, error) {
	if p.fail.Load() {
		return 0, ErrProbeFailed
	}
	return p.available.Load(), nil
}

// Set changes the reported value.
func (p *FixedProbe) Set(available uint64) {
	p.available.Store(available)
}

// Fail makes subsequent calls return ErrProbeFailed.
func (p *FixedProbe) Fail(fail bool) {
	p.fail.Store(fail)
}

// CountingProducer returns a fixed value or error and counts invocations.
type CountingProducer struct {
	Value any
	Err   error

	// Delay is slept before returning, to widen race windows.
	Delay time.Duration

	calls atomic.Int64
}

// Produce has the cache.Producer signature.
func (p *CountingProducer) Produce(ctx context.Context) (any, error) {
	p.calls.Add(1)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Value, nil
}

// Calls returns how many times Produce ran.
func (p *CountingProducer) Calls() int64 {
	return p.calls.Load()
}
