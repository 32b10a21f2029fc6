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
	"sync"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

// FIFO is a single shared bounded queue across every registered source.
type FIFO struct {
	capacity int
	ch       chan kafka.Message

	mu      sync.Mutex
	sources map[string]struct{}
}

// NewFIFO returns an empty FIFO with the given per-instance capacity.
// capacity must be positive.
func NewFIFO(capacity int) *FIFO {
	if capacity <= 0 {
		panic(kerrors.Newf(kerrors.KindConfiguration, "buffer: FIFO capacity must be positive, got %d", capacity))
	}
	return &FIFO{
		capacity: capacity,
		ch:       make(chan kafka.Message, capacity),
		sources:  make(map[string]struct{}),
	}
}

// AddSource implements Buffer.
func (f *FIFO) AddSource(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[sourceID] = struct{}{}
}

// RemoveSource implements Buffer.
func (f *FIFO) RemoveSource(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, sourceID)
}

// Put implements Buffer.
func (f *FIFO) Put(sourceID string, msg kafka.Message, stop <-chan struct{}) bool {
	f.AddSource(sourceID)
	select {
	case f.ch <- msg:
		return true
	case <-stop:
		return false
	}
}

// Poll implements Buffer.
func (f *FIFO) Poll() (kafka.Message, bool) {
	select {
	case msg := <-f.ch:
		return msg, true
	default:
		return kafka.Message{}, false
	}
}
