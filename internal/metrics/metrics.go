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

// Package metrics wraps github.com/uber-go/tally behind the kafka.Metrics
// sink interface, and names every metric the core emits.
package metrics

import (
	"sync"
	"time"

	"github.com/uber-go/tally"
)

// Metric names, grouped by the component that emits them. Scopes (the
// first argument to every kafka.Metrics call) are source or consumer
// identifiers, not part of these names, so the same constant reads the
// same way across every tagged scope.
const (
	// Consumer (internal/consumer).
	ConsumerOpened        = "consumer.opened"
	ConsumerClosed        = "consumer.closed"
	RecordsConsumed       = "consumer.records_consumed"
	OffsetCommitted       = "consumer.offset_committed"
	OffsetFlushed         = "consumer.offset_flushed"
	PartitionAssigned     = "consumer.partition_assigned"
	PartitionUnsubscribed = "consumer.partition_unsubscribed"

	// Source (internal/source).
	MessagesEmitted      = "source.messages_emitted"
	MessagesFiltered     = "source.messages_filtered"
	MessagesUndecodable  = "source.messages_undecodable"
	MessagesAcked        = "source.messages_acked"
	MessagesFailed       = "source.messages_failed"
	MessagesRetried      = "source.messages_retried"
	SourceCompleted      = "source.completed"

	// Coordinator (internal/coordinator).
	BufferPutLatencyMs = "coordinator.buffer_put_latency_ms"
	WorkerFlushError   = "coordinator.worker_flush_error"
	WorkerExited       = "coordinator.worker_exited"

	// Sideline Controller (internal/sideline).
	SidelineStarted = "sideline.started"
	SidelineStopped = "sideline.stopped"
	SidelineResumed = "sideline.resumed"

	// Persistence Adapter (internal/persistence).
	PersistenceRetry   = "persistence.retry"
	PersistenceFailure = "persistence.failure"
)

// Tally adapts a tally.Scope to kafka.Metrics. Counter/timer/gauge
// instances are created lazily and cached per (scope, name) pair, since
// tally.Scope.Counter et al. are safe to call repeatedly but allocate a
// new reporter handle each time.
type Tally struct {
	root tally.Scope

	mu       sync.Mutex
	counters map[string]tally.Counter
	timers   map[string]tally.Timer
	gauges   map[string]tally.Gauge
}

// New returns a Tally sink reporting through root.
func New(root tally.Scope) *Tally {
	return &Tally{
		root:     root,
		counters: make(map[string]tally.Counter),
		timers:   make(map[string]tally.Timer),
		gauges:   make(map[string]tally.Gauge),
	}
}

func key(scope, name string) string { return scope + "\x00" + name }

// Count implements kafka.Metrics.
func (t *Tally) Count(scope, name string, delta int64) {
	t.mu.Lock()
	c, ok := t.counters[key(scope, name)]
	if !ok {
		c = t.root.Tagged(map[string]string{"scope": scope}).Counter(name)
		t.counters[key(scope, name)] = c
	}
	t.mu.Unlock()
	c.Inc(delta)
}

// Timer implements kafka.Metrics.
func (t *Tally) Timer(scope, name string, ms float64) {
	t.mu.Lock()
	tm, ok := t.timers[key(scope, name)]
	if !ok {
		tm = t.root.Tagged(map[string]string{"scope": scope}).Timer(name)
		t.timers[key(scope, name)] = tm
	}
	t.mu.Unlock()
	tm.Record(time.Duration(ms * float64(time.Millisecond)))
}

// Gauge implements kafka.Metrics.
func (t *Tally) Gauge(scope, name string, value float64) {
	t.mu.Lock()
	g, ok := t.gauges[key(scope, name)]
	if !ok {
		g = t.root.Tagged(map[string]string{"scope": scope}).Gauge(name)
		t.gauges[key(scope, name)] = g
	}
	t.mu.Unlock()
	g.Update(value)
}
