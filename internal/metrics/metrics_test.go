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

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uber-go/tally"
)

func TestCountReportsThroughTaggedScope(t *testing.T) {
	scope := tally.NewTestScope("kafkaspout", nil)
	sink := New(scope)

	sink.Count("source-1", MessagesEmitted, 3)
	sink.Count("source-1", MessagesEmitted, 2)

	snap := scope.Snapshot()
	for _, c := range snap.Counters() {
		if c.Name() == MessagesEmitted {
			assert.Equal(t, int64(5), c.Value())
			return
		}
	}
	t.Fatal("counter not found")
}

func TestGaugeAndTimerDoNotPanic(t *testing.T) {
	scope := tally.NewTestScope("kafkaspout", nil)
	sink := New(scope)

	assert.NotPanics(t, func() {
		sink.Gauge("source-1", "lag", 42)
		sink.Timer("source-1", "latency", 12.5)
	})
}
