// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package retry decides when, and whether, a VirtualSource should replay a
// message the host has failed.
package retry

import (
	"sync"
	"time"

	"github.com/uber-go/kafka-spout/kafka"
)

// Manager decides when/whether a failed message is replayed. All methods
// must be safe to call concurrently: fail/ack can arrive on the host's
// ack/fail thread while the owning VirtualSource's worker polls
// NextEligible.
type Manager interface {
	// Failed records a failure for id and schedules its next eligible
	// wall-clock time.
	Failed(id kafka.MessageID)
	// RetryFurther reports whether another attempt at id is permitted.
	RetryFurther(id kafka.MessageID) bool
	// NextEligible returns the id whose scheduled retry time has passed,
	// lowest scheduled time first, ties broken by insertion order. It is
	// non-blocking and pops the entry: a given scheduled retry is yielded
	// at most once.
	NextEligible() (kafka.MessageID, bool)
	// Acked drops all tracking for id.
	Acked(id kafka.MessageID)
}

// NeverRetry always gives up: RetryFurther is always false, so a
// VirtualSource acks on the very first failure.
type NeverRetry struct{}

// Failed implements Manager; NeverRetry tracks nothing.
func (NeverRetry) Failed(kafka.MessageID) {}

// RetryFurther implements Manager; always false.
func (NeverRetry) RetryFurther(kafka.MessageID) bool { return false }

// NextEligible implements Manager; never yields anything.
func (NeverRetry) NextEligible() (kafka.MessageID, bool) { return kafka.MessageID{}, false }

// Acked implements Manager; no-op.
func (NeverRetry) Acked(kafka.MessageID) {}

type backoffEntry struct {
	attempts    int
	scheduledAt time.Time
	seq         uint64
	ready       bool
}

// ExponentialBackoff retries up to maxRetries times, waiting
// initialDelay*multiplier^(attempt-1) between each.
type ExponentialBackoff struct {
	maxRetries   int
	initialDelay time.Duration
	multiplier   float64
	clock        Clock

	mu      sync.Mutex
	entries map[kafka.MessageID]*backoffEntry
	nextSeq uint64
}

// NewExponentialBackoff returns a Manager with the given policy, driven by
// clock (inject retry.RealClock in production, a *VirtualClock in tests).
func NewExponentialBackoff(maxRetries int, initialDelay time.Duration, multiplier float64, clock Clock) *ExponentialBackoff {
	return &ExponentialBackoff{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		multiplier:   multiplier,
		clock:        clock,
		entries:      make(map[kafka.MessageID]*backoffEntry),
	}
}

// RetryFurther implements Manager.
func (b *ExponentialBackoff) RetryFurther(id kafka.MessageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	attempts := 0
	if e, ok := b.entries[id]; ok {
		attempts = e.attempts
	}
	return attempts < b.maxRetries
}

// Failed implements Manager.
func (b *ExponentialBackoff) Failed(id kafka.MessageID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		e = &backoffEntry{}
		b.entries[id] = e
	}
	e.attempts++
	delay := b.delayFor(e.attempts)
	e.scheduledAt = b.clock.Now().Add(delay)
	e.seq = b.nextSeq
	b.nextSeq++
	e.ready = true
}

func (b *ExponentialBackoff) delayFor(attempt int) time.Duration {
	delay := float64(b.initialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.multiplier
	}
	return time.Duration(delay)
}

// NextEligible implements Manager.
func (b *ExponentialBackoff) NextEligible() (kafka.MessageID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	var bestID kafka.MessageID
	var best *backoffEntry
	for id, e := range b.entries {
		if !e.ready || e.scheduledAt.After(now) {
			continue
		}
		if best == nil || e.scheduledAt.Before(best.scheduledAt) ||
			(e.scheduledAt.Equal(best.scheduledAt) && e.seq < best.seq) {
			best = e
			bestID = id
		}
	}
	if best == nil {
		return kafka.MessageID{}, false
	}
	best.ready = false
	return bestID, true
}

// Acked implements Manager.
func (b *ExponentialBackoff) Acked(id kafka.MessageID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
}
