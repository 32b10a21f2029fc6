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

// Package coordinator runs one worker goroutine per Virtual Source (the
// firehose plus every in-flight replay source) and fans their output into
// a single shared Message Buffer, per spec.md section 4.H.
package coordinator

import (
	"sync"
	"time"

	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/internal/buffer"
	"github.com/uber-go/kafka-spout/internal/metrics"
	"github.com/uber-go/kafka-spout/internal/source"
	"github.com/uber-go/kafka-spout/kafka"
)

// pollBackoff is the sleep between unproductive NextMessage polls of a
// source, bounding how fast an idle worker spins.
const pollBackoff = time.Millisecond

// Config fixes the coordinator's two timers and the firehose it owns from
// the moment it opens.
type Config struct {
	Firehose       *source.Source
	FlushInterval  time.Duration
	CloseTimeout   time.Duration
}

// Coordinator is the Coordinator capability (spec.md section 4.H): it owns
// the firehose Virtual Source, every replay source spawned by the Sideline
// Controller, and the shared Message Buffer they feed.
type Coordinator struct {
	cfg     Config
	buf     buffer.Buffer
	logger  *zap.Logger
	metrics kafka.Metrics

	mu      sync.Mutex
	sources map[string]*source.Source
	wg      sync.WaitGroup
	closed  bool
}

// New returns an unopened Coordinator.
func New(cfg Config, buf buffer.Buffer, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		buf:     buf,
		logger:  logger,
		sources: make(map[string]*source.Source),
	}
}

// SetMetrics attaches a metrics sink. Unset is equivalent to
// kafka.NopMetrics{}.
func (c *Coordinator) SetMetrics(m kafka.Metrics) { c.metrics = m }

func (c *Coordinator) metric() kafka.Metrics {
	if c.metrics == nil {
		return kafka.NopMetrics{}
	}
	return c.metrics
}

// Open starts the firehose and its worker. It is the caller's
// responsibility to run the sideline resume protocol (spec.md section
// 4.I) and call AddReplaySource for every reconstructed bounded source
// before or after Open returns.
func (c *Coordinator) Open() error {
	return c.addSource("firehose", c.cfg.Firehose)
}

// AddReplaySource registers a bounded replay source spawned by the
// Sideline Controller, opens it, and starts its worker. Called with a
// sourceID already tracked is a Precondition error.
func (c *Coordinator) AddReplaySource(sourceID string, s *source.Source) error {
	return c.addSource(sourceID, s)
}

func (c *Coordinator) addSource(sourceID string, s *source.Source) error {
	c.mu.Lock()
	if _, exists := c.sources[sourceID]; exists {
		c.mu.Unlock()
		return kerrors.Newf(kerrors.KindPrecondition, "coordinator: source %s already running", sourceID)
	}
	c.sources[sourceID] = s
	c.mu.Unlock()

	if err := s.Open(); err != nil {
		c.mu.Lock()
		delete(c.sources, sourceID)
		c.mu.Unlock()
		return err
	}

	c.buf.AddSource(sourceID)
	c.wg.Add(1)
	go c.runWorker(sourceID, s)
	return nil
}

// runWorker is the worker loop for one Virtual Source: poll for a
// message, hand it to the buffer (blocking on backpressure), and flush on
// a separate timer so persistence progress never waits on message
// arrival. It exits once the source reports it has been asked to stop.
func (c *Coordinator) runWorker(sourceID string, s *source.Source) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		if s.StopRequested() {
			c.retireSource(sourceID, s)
			return
		}

		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				c.logger.Error("source flush failed", zap.String("sourceId", sourceID), zap.Error(err))
				c.metric().Count(sourceID, metrics.WorkerFlushError, 1)
			}
			continue
		default:
		}

		msg, ok := s.NextMessage()
		if !ok {
			time.Sleep(pollBackoff)
			continue
		}
		if !c.buf.Put(sourceID, msg, s.StopSignal()) {
			c.retireSource(sourceID, s)
			return
		}
	}
}

func (c *Coordinator) retireSource(sourceID string, s *source.Source) {
	if err := s.Close(); err != nil {
		c.logger.Error("source close failed", zap.String("sourceId", sourceID), zap.Error(err))
	}
	c.buf.RemoveSource(sourceID)
	c.mu.Lock()
	delete(c.sources, sourceID)
	c.mu.Unlock()
	c.logger.Debug("source worker exited", zap.String("sourceId", sourceID))
	c.metric().Count(sourceID, metrics.WorkerExited, 1)
}

// NextMessage returns the next message ready for the host, or ok=false if
// none is currently buffered.
func (c *Coordinator) NextMessage() (kafka.Message, bool) {
	return c.buf.Poll()
}

// Ack dispatches an ack to the source that emitted id. A race against that
// source's own retirement is resolved by silently dropping the ack: the
// source is already closed and its state discarded.
func (c *Coordinator) Ack(id kafka.MessageID) {
	if s, ok := c.sourceFor(id); ok {
		s.Ack(id)
	}
}

// Fail dispatches a fail to the source that emitted id, logging when the
// source has already been retired out from under it.
func (c *Coordinator) Fail(id kafka.MessageID) {
	s, ok := c.sourceFor(id)
	if !ok {
		c.logger.Warn("fail for unknown source", zap.String("messageId", id.String()))
		return
	}
	s.Fail(id)
}

func (c *Coordinator) sourceFor(id kafka.MessageID) (*source.Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[id.SourceID]
	return s, ok
}

// Close requests every source stop and joins their workers with a bounded
// timeout. The shared buffer itself is not closed; each worker removes its
// own source from it as it retires. Workers that fail to exit within
// the timeout are abandoned and logged; their resources are released
// best-effort by the worker goroutine whenever it eventually notices.
func (c *Coordinator) Close() {
	if c.closed {
		return
	}
	c.closed = true

	c.mu.Lock()
	for id, s := range c.sources {
		s.RequestStop()
		c.logger.Debug("requesting source stop", zap.String("sourceId", id))
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.cfg.CloseTimeout):
		c.logger.Error("coordinator close timed out waiting for workers", zap.Duration("timeout", c.cfg.CloseTimeout))
	}
}
