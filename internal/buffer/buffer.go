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

// Package buffer holds the bounded, per-source queues that sit between
// every Virtual Source's worker and the Coordinator's single output
// (spec.md section 4.G).
package buffer

import "github.com/uber-go/kafka-spout/kafka"

// Buffer is the Message Buffer capability interface.
type Buffer interface {
	// AddSource registers sourceID with its own bounded queue. A no-op if
	// already registered.
	AddSource(sourceID string)
	// RemoveSource unregisters sourceID. RoundRobin drops any messages
	// already queued for it; FIFO's single shared queue keeps them.
	RemoveSource(sourceID string)
	// Put enqueues msg for sourceID, blocking while that source's queue
	// is full. Auto-adds sourceID if it hasn't been registered yet. stop
	// interrupts the wait: if it fires before the queue has room, Put
	// abandons the enqueue and returns false without blocking a worker
	// that has been asked to shut down. A nil stop never fires.
	Put(sourceID string, msg kafka.Message, stop <-chan struct{}) bool
	// Poll returns the next available message, or ok=false if none is
	// currently available. Non-blocking.
	Poll() (kafka.Message, bool)
}
