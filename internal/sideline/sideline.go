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

// Package sideline implements the Sideline Controller (spec.md section
// 4.I): attaching and detaching predicates on the firehose's filter
// chain, and spawning the bounded replay sources that deliver what was
// diverted while a predicate was attached.
package sideline

import (
	"fmt"

	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/internal/broker"
	"github.com/uber-go/kafka-spout/internal/consumer"
	"github.com/uber-go/kafka-spout/internal/coordinator"
	"github.com/uber-go/kafka-spout/internal/filterchain"
	"github.com/uber-go/kafka-spout/internal/metrics"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/retry"
	"github.com/uber-go/kafka-spout/internal/source"
	"github.com/uber-go/kafka-spout/kafka"
)

// Firehose is the subset of *source.Source the controller needs from the
// always-running unfiltered source it sidelines against.
type Firehose interface {
	CurrentState() kafka.OffsetMap
}

// Config wires the controller to the firehose it filters and the
// collaborators it needs to build and hand off new replay sources.
type Config struct {
	FirehoseID      string
	Firehose        Firehose
	Chain           *filterchain.Chain
	Persistence     persistence.Adapter
	Coordinator     *coordinator.Coordinator
	Broker          broker.Consumer
	RetryManager    retry.Manager
	Deserializer    kafka.Deserializer
	Logger          *zap.Logger
	Metrics         kafka.Metrics
}

// Controller is the Sideline Controller. It holds no state of its own
// beyond its Config: every durable fact lives in the Persistence Adapter,
// every in-memory fact lives in the shared firehose Chain and Coordinator.
type Controller struct {
	cfg Config
}

func (c *Controller) metric() kafka.Metrics {
	if c.cfg.Metrics == nil {
		return kafka.NopMetrics{}
	}
	return c.cfg.Metrics
}

// New returns a Controller. Call Resume once after the firehose and
// Coordinator are open and before any trigger calls StartSideline or
// StopSideline.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// StartSideline attaches request's predicate to the firehose filter
// chain and returns the identifier it was persisted and attached under.
func (c *Controller) StartSideline(request kafka.SidelineRequest) (kafka.SidelineIdentifier, error) {
	identifier := kafka.NewSidelineIdentifier()
	startingState := c.cfg.Firehose.CurrentState()

	for _, p := range startingState.Partitions() {
		offset, _ := startingState.Get(p)
		if err := c.cfg.Persistence.PersistSidelineRequest(kafka.PayloadStart, identifier, request.Steps, p, offset, nil); err != nil {
			return "", kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: persist start for %s", identifier)
		}
	}

	if err := c.cfg.Chain.AddSteps(identifier, request.Steps); err != nil {
		return "", err
	}
	c.cfg.Logger.Info("sideline started", zap.String("identifier", string(identifier)))
	c.metric().Count(c.cfg.FirehoseID, metrics.SidelineStarted, 1)
	return identifier, nil
}

// StopSideline detaches request's predicate from the firehose filter
// chain and spawns a bounded replay source over the range it diverted.
// It is a no-op if the predicate isn't currently attached.
func (c *Controller) StopSideline(request kafka.SidelineRequest) error {
	identifier, ok := c.cfg.Chain.FindByValue(request.Steps)
	if !ok {
		c.cfg.Logger.Info("stop sideline: predicate not attached, ignoring")
		return nil
	}

	endingState := c.cfg.Firehose.CurrentState()
	steps, ok := c.cfg.Chain.RemoveSteps(identifier)
	if !ok {
		c.cfg.Logger.Info("stop sideline: already detached, ignoring", zap.String("identifier", string(identifier)))
		return nil
	}

	startingState, err := c.recoverStartingState(identifier)
	if err != nil {
		return err
	}

	for _, p := range startingState.Partitions() {
		end, _ := endingState.Get(p)
		endCopy := end
		if err := c.cfg.Persistence.PersistSidelineRequest(kafka.PayloadStop, identifier, steps, p, mustGet(startingState, p), &endCopy); err != nil {
			return kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: persist stop for %s", identifier)
		}
	}

	return c.spawnReplay(identifier, steps, startingState, endingState)
}

func mustGet(m kafka.OffsetMap, p kafka.PartitionKey) int64 {
	v, _ := m.Get(p)
	return v
}

// recoverStartingState rebuilds the offset map a START payload recorded
// for identifier, reading every persisted partition entry.
func (c *Controller) recoverStartingState(identifier kafka.SidelineIdentifier) (kafka.OffsetMap, error) {
	partitions, err := c.cfg.Persistence.ListPartitions(identifier)
	if err != nil {
		return kafka.OffsetMap{}, kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: list partitions for %s", identifier)
	}
	out := kafka.NewOffsetMap()
	for _, p := range partitions {
		rec, ok, err := c.cfg.Persistence.RetrieveSidelineRequest(identifier, p)
		if err != nil {
			return kafka.OffsetMap{}, kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: retrieve start for %s", identifier)
		}
		if !ok {
			continue
		}
		out.Set(p, rec.StartingOffset)
	}
	return out, nil
}

// spawnReplay builds a bounded VirtualSource over (startingState,
// endingState), attaches the negated predicate so it only emits what the
// live predicate diverted, and hands it to the Coordinator.
func (c *Controller) spawnReplay(identifier kafka.SidelineIdentifier, steps []kafka.FilterStep, startingState, endingState kafka.OffsetMap) error {
	sourceID := fmt.Sprintf("%s_%s", c.cfg.FirehoseID, identifier)

	topics := make(map[string]struct{})
	for _, p := range startingState.Partitions() {
		topics[p.Topic] = struct{}{}
	}
	topicList := make([]string, 0, len(topics))
	for t := range topics {
		topicList = append(topicList, t)
	}

	replayConsumer := consumer.New(sourceID, c.cfg.Broker, c.cfg.Persistence, consumer.Options{
		Topics:      topicList,
		WorkerIndex: 0,
		WorkerCount: 1,
	}, c.cfg.Logger)

	replayChain := filterchain.New()
	if err := replayChain.AddSteps(identifier, kafka.Negate(steps)); err != nil {
		return err
	}

	replaySource := source.New(source.Config{
		SourceID:      sourceID,
		Bounded:       true,
		StartingState: startingState,
		EndingState:   endingState,
		Identifier:    identifier,
	}, replayConsumer, replayChain, c.cfg.RetryManager, c.cfg.Persistence, c.cfg.Deserializer, c.cfg.Logger)

	if err := c.cfg.Coordinator.AddReplaySource(sourceID, replaySource); err != nil {
		return err
	}
	c.cfg.Logger.Info("sideline stopped, replay source started",
		zap.String("identifier", string(identifier)), zap.String("sourceId", sourceID))
	c.metric().Count(c.cfg.FirehoseID, metrics.SidelineStopped, 1)
	return nil
}

// Resume replays the persisted sideline log on startup: every identifier
// with an outstanding START entry is re-attached to the firehose filter
// chain, and every identifier with a STOP entry gets its replay source
// reconstructed and handed back to the Coordinator. After Resume returns,
// the system has converged to the in-memory state it had before shutdown.
func (c *Controller) Resume() error {
	identifiers, err := c.cfg.Persistence.ListIdentifiers()
	if err != nil {
		return kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: list identifiers")
	}

	for _, identifier := range identifiers {
		if err := c.resumeOne(identifier); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) resumeOne(identifier kafka.SidelineIdentifier) error {
	partitions, err := c.cfg.Persistence.ListPartitions(identifier)
	if err != nil {
		return kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: list partitions for %s", identifier)
	}
	if len(partitions) == 0 {
		return nil
	}

	startingState := kafka.NewOffsetMap()
	endingState := kafka.NewOffsetMap()
	var steps []kafka.FilterStep
	var payloadType kafka.PayloadType
	hasEnding := false

	for _, p := range partitions {
		rec, ok, err := c.cfg.Persistence.RetrieveSidelineRequest(identifier, p)
		if err != nil {
			return kerrors.Wrapf(kerrors.KindPersistence, err, "sideline: retrieve %s/%s", identifier, p)
		}
		if !ok {
			continue
		}
		payloadType = rec.Type
		steps = rec.Steps
		startingState.Set(p, rec.StartingOffset)
		if rec.EndingOffset != nil {
			hasEnding = true
			endingState.Set(p, *rec.EndingOffset)
		}
	}

	switch payloadType {
	case kafka.PayloadStart:
		if err := c.cfg.Chain.AddSteps(identifier, steps); err != nil {
			// Already attached: resuming converges to the same state, not an error.
			c.cfg.Logger.Debug("resume: start already attached", zap.String("identifier", string(identifier)))
		}
		c.cfg.Logger.Info("resumed sideline start", zap.String("identifier", string(identifier)))
	case kafka.PayloadStop:
		if !hasEnding {
			c.cfg.Logger.Warn("resume: stop payload missing ending offsets, skipping", zap.String("identifier", string(identifier)))
			return nil
		}
		if err := c.spawnReplay(identifier, steps, startingState, endingState); err != nil {
			return err
		}
		c.cfg.Logger.Info("resumed sideline stop", zap.String("identifier", string(identifier)))
	}
	c.metric().Count(c.cfg.FirehoseID, metrics.SidelineResumed, 1)
	return nil
}
