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

// Package filterchain implements the firehose's ordered, identifier-keyed
// predicate list. Mutation is copy-on-write: AddSteps/RemoveSteps build a
// new snapshot and atomically swap it in, so Match (called from the
// firehose's worker goroutine) never takes a lock.
package filterchain

import (
	"sync"
	"sync/atomic"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

type entry struct {
	id    kafka.SidelineIdentifier
	steps []kafka.FilterStep
}

// Chain is the Filter Chain of spec.md section 4.E: an ordered sequence of
// (identifier, steps) pairs. Match(m) is true iff any constituent step
// matches -- logical OR across the whole chain.
type Chain struct {
	snapshot atomic.Pointer[[]entry]
	writeMu  sync.Mutex
}

// New returns an empty Chain.
func New() *Chain {
	c := &Chain{}
	empty := make([]entry, 0)
	c.snapshot.Store(&empty)
	return c
}

// Match reports whether m is diverted by any step in the chain. Safe to
// call from any goroutine without locking.
func (c *Chain) Match(m kafka.Message) bool {
	entries := *c.snapshot.Load()
	for _, e := range entries {
		for _, s := range e.steps {
			if s.Match(m) {
				return true
			}
		}
	}
	return false
}

// AddSteps attaches steps under id. Identifiers are unique: attaching an
// id that is already present is a Precondition error.
func (c *Chain) AddSteps(id kafka.SidelineIdentifier, steps []kafka.FilterStep) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := *c.snapshot.Load()
	for _, e := range cur {
		if e.id == id {
			return kerrors.Newf(kerrors.KindPrecondition, "filter chain: identifier %q already attached", id)
		}
	}

	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry{id: id, steps: steps})
	c.snapshot.Store(&next)
	return nil
}

// RemoveSteps detaches and returns the steps tagged with id. ok is false
// if id was not attached.
func (c *Chain) RemoveSteps(id kafka.SidelineIdentifier) (steps []kafka.FilterStep, ok bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := *c.snapshot.Load()
	next := make([]entry, 0, len(cur))
	for _, e := range cur {
		if e.id == id {
			steps = e.steps
			ok = true
			continue
		}
		next = append(next, e)
	}
	if !ok {
		return nil, false
	}
	c.snapshot.Store(&next)
	return steps, true
}

// FindByValue looks up the identifier whose attached steps are
// structurally equal to steps -- used to look up a sideline by the
// client-provided predicate list on stop.
func (c *Chain) FindByValue(steps []kafka.FilterStep) (kafka.SidelineIdentifier, bool) {
	entries := *c.snapshot.Load()
	for _, e := range entries {
		if kafka.StepsEqual(e.steps, steps) {
			return e.id, true
		}
	}
	return "", false
}

// Len returns the number of attached identifiers; used only by tests.
func (c *Chain) Len() int {
	return len(*c.snapshot.Load())
}
