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

package kafka

// Metrics is the sink every component reports through. All calls are
// best-effort and must never fail the caller or block it meaningfully;
// implementations that wrap a real backend (internal/metrics wraps tally)
// are expected to swallow backend errors themselves.
type Metrics interface {
	Count(scope, name string, delta int64)
	Timer(scope, name string, ms float64)
	Gauge(scope, name string, value float64)
}

// NopMetrics is a Metrics implementation that does nothing; it is the
// default when no sink is configured.
type NopMetrics struct{}

// Count implements Metrics.
func (NopMetrics) Count(scope, name string, delta int64) {}

// Timer implements Metrics.
func (NopMetrics) Timer(scope, name string, ms float64) {}

// Gauge implements Metrics.
func (NopMetrics) Gauge(scope, name string, value float64) {}
