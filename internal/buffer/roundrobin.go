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

package buffer

import (
	"regexp"
	"sync"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

// RoundRobin gives every source its own bounded queue and polls them
// fairly: each Poll call resumes from where the last one left off,
// skipping empty queues, and gives up after one full cycle finds nothing.
type RoundRobin struct {
	capacityFor func(sourceID string) int

	mu     sync.Mutex
	order  []string
	queues map[string]chan kafka.Message
	cursor int
}

// NewRoundRobin returns an empty RoundRobin where every source gets the
// same queue capacity. capacity must be positive.
func NewRoundRobin(capacity int) *RoundRobin {
	if capacity <= 0 {
		panic(kerrors.Newf(kerrors.KindConfiguration, "buffer: RoundRobin capacity must be positive, got %d", capacity))
	}
	return newRoundRobin(func(string) int { return capacity })
}

func newRoundRobin(capacityFor func(string) int) *RoundRobin {
	return &RoundRobin{
		capacityFor: capacityFor,
		queues:      make(map[string]chan kafka.Message),
	}
}

// AddSource implements Buffer.
func (r *RoundRobin) AddSource(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addSourceLocked(sourceID)
}

func (r *RoundRobin) addSourceLocked(sourceID string) chan kafka.Message {
	if ch, ok := r.queues[sourceID]; ok {
		return ch
	}
	ch := make(chan kafka.Message, r.capacityFor(sourceID))
	r.queues[sourceID] = ch
	r.order = append(r.order, sourceID)
	r.cursor = 0
	return ch
}

// RemoveSource implements Buffer.
func (r *RoundRobin) RemoveSource(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[sourceID]; !ok {
		return
	}
	delete(r.queues, sourceID)
	for i, id := range r.order {
		if id == sourceID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.cursor = 0
}

// Put implements Buffer.
func (r *RoundRobin) Put(sourceID string, msg kafka.Message, stop <-chan struct{}) bool {
	r.mu.Lock()
	ch := r.addSourceLocked(sourceID)
	r.mu.Unlock()
	select {
	case ch <- msg:
		return true
	case <-stop:
		return false
	}
}

// Poll implements Buffer.
func (r *RoundRobin) Poll() (kafka.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.order)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		id := r.order[idx]
		select {
		case msg := <-r.queues[id]:
			r.cursor = (idx + 1) % n
			return msg, true
		default:
		}
	}
	return kafka.Message{}, false
}

// ThrottledRoundRobin is a RoundRobin whose per-source capacity depends on
// whether the sourceID matches a configured pattern: matched sources get a
// small (throttled) capacity, everything else gets the normal capacity.
// This slows a throttled source's producer via backpressure on Put
// independently of the rest.
type ThrottledRoundRobin struct {
	*RoundRobin
}

// NewThrottledRoundRobin returns an empty ThrottledRoundRobin. Both
// capacities must be positive.
func NewThrottledRoundRobin(normalCapacity, throttledCapacity int, throttlePattern *regexp.Regexp) *ThrottledRoundRobin {
	if normalCapacity <= 0 || throttledCapacity <= 0 {
		panic(kerrors.New(kerrors.KindConfiguration, "buffer: ThrottledRoundRobin capacities must be positive"))
	}
	capacityFor := func(sourceID string) int {
		if throttlePattern != nil && throttlePattern.MatchString(sourceID) {
			return throttledCapacity
		}
		return normalCapacity
	}
	return &ThrottledRoundRobin{RoundRobin: newRoundRobin(capacityFor)}
}
