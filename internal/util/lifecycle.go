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

package util

import (
	"sync/atomic"

	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
)

// RunLifecycle guards a component's open/close transitions so that Start
// only ever runs its body once and Stop is a no-op after the first call.
// The Partitioned Log Consumer and the Virtual Source each hold one of
// these instead of hand-rolling a done flag.
type RunLifecycle struct {
	name    string
	logger  *zap.Logger
	started int32
	stopped int32
}

// NewRunLifecycle returns a lifecycle guard identified by name, used only
// for log lines.
func NewRunLifecycle(name string, logger *zap.Logger) *RunLifecycle {
	return &RunLifecycle{name: name, logger: logger}
}

// Start runs fn exactly once across the lifetime of this guard. A second
// call returns a Precondition error without running fn again.
func (l *RunLifecycle) Start(fn func() error) error {
	if !atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		return kerrors.Newf(kerrors.KindPrecondition, "%s: already opened", l.name)
	}
	if err := fn(); err != nil {
		return err
	}
	l.logger.Debug("lifecycle started", zap.String("component", l.name))
	return nil
}

// Stop runs fn exactly once; subsequent calls are no-ops so close paths can
// be called defensively from multiple places (e.g. an error path and a
// deferred cleanup) without double-releasing resources.
func (l *RunLifecycle) Stop(fn func()) {
	if !atomic.CompareAndSwapInt32(&l.stopped, 0, 1) {
		return
	}
	fn()
	l.logger.Debug("lifecycle stopped", zap.String("component", l.name))
}

// Started reports whether Start has been called (successfully or not).
func (l *RunLifecycle) Started() bool {
	return atomic.LoadInt32(&l.started) == 1
}

// Stopped reports whether Stop has been called. The flag is set before
// Stop's fn runs, so it may report true while fn is still running.
func (l *RunLifecycle) Stopped() bool {
	return atomic.LoadInt32(&l.stopped) == 1
}
