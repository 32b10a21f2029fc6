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

// Package consumer is the Partitioned Log Consumer: it owns one broker
// client and one durable offset map per source, assigning itself a static
// slice of a topic's partitions and tracking the commit floor (the maximum
// contiguous acknowledged prefix) for each.
package consumer

import (
	"sync"

	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/internal/broker"
	"github.com/uber-go/kafka-spout/internal/metrics"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/util"
	"github.com/uber-go/kafka-spout/kafka"
)

// Options configures a Consumer.
type Options struct {
	// Topics this consumer reads from.
	Topics []string
	// WorkerIndex and WorkerCount implement the p mod N == i static
	// assignment rule.
	WorkerIndex int
	WorkerCount int
}

// partitionState tracks one assigned partition's broker handle and commit
// floor. acked holds offsets marked processed that are not yet folded into
// committed because a lower offset is still outstanding.
type partitionState struct {
	pc        broker.PartitionConsumer
	committed int64
	acked     map[int64]struct{}
	dirty     bool
}

// Consumer is the Partitioned Log Consumer (spec.md section 4.D).
type Consumer struct {
	sourceID    string
	broker      broker.Consumer
	persistence persistence.Adapter
	options     Options
	logger      *zap.Logger
	lifecycle   *util.RunLifecycle
	metrics     kafka.Metrics

	mu         sync.Mutex
	partitions map[kafka.PartitionKey]*partitionState
}

// SetMetrics attaches a metrics sink. Unset is equivalent to
// kafka.NopMetrics{}.
func (c *Consumer) SetMetrics(m kafka.Metrics) { c.metrics = m }

func (c *Consumer) metric() kafka.Metrics {
	if c.metrics == nil {
		return kafka.NopMetrics{}
	}
	return c.metrics
}

// New returns an unopened Consumer for sourceID.
func New(sourceID string, brokerConsumer broker.Consumer, persist persistence.Adapter, options Options, logger *zap.Logger) *Consumer {
	return &Consumer{
		sourceID:    sourceID,
		broker:      brokerConsumer,
		persistence: persist,
		options:     options,
		logger:      logger,
		lifecycle:   util.NewRunLifecycle("consumer-"+sourceID, logger),
		partitions:  make(map[kafka.PartitionKey]*partitionState),
	}
}

// Open assigns this worker's partitions across options.Topics and seeks
// each to startingState[p]+1, or the broker default if startingState has
// no entry for p.
func (c *Consumer) Open(startingState kafka.OffsetMap) error {
	return c.lifecycle.Start(func() error {
		for _, topic := range c.options.Topics {
			indices, err := c.broker.Partitions(topic)
			if err != nil {
				return err
			}
			for _, idx := range indices {
				if c.options.WorkerCount > 0 && int(idx)%c.options.WorkerCount != c.options.WorkerIndex {
					continue
				}
				pk := kafka.PartitionKey{Topic: topic, Partition: idx}
				if err := c.openPartition(pk, startingState); err != nil {
					return err
				}
			}
		}
		c.metric().Count(c.sourceID, metrics.ConsumerOpened, 1)
		return nil
	})
}

func (c *Consumer) openPartition(pk kafka.PartitionKey, startingState kafka.OffsetMap) error {
	committed := int64(-1)
	offset := kafka.DefaultOffset
	if stored, ok := startingState.Get(pk); ok {
		committed = stored
		offset = stored + 1
	}
	pc, err := c.broker.ConsumePartition(pk, offset)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.partitions[pk] = &partitionState{pc: pc, committed: committed, acked: make(map[int64]struct{})}
	c.mu.Unlock()
	c.logger.Debug("consumer opened partition",
		zap.String("sourceId", c.sourceID), zap.String("partition", pk.String()), zap.Int64("offset", offset))
	c.metric().Count(c.sourceID, metrics.PartitionAssigned, 1)
	return nil
}

// NextRecord returns the next available record across any subscribed
// partition with no guaranteed cross-partition ordering, or ok=false if
// none is currently available (non-blocking).
func (c *Consumer) NextRecord() (kafka.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pk, ps := range c.partitions {
		select {
		case msg, ok := <-ps.pc.Messages():
			if !ok {
				continue
			}
			c.metric().Count(c.sourceID, metrics.RecordsConsumed, 1)
			return kafka.Record{Partition: pk, Offset: msg.Offset, Key: msg.Key, Value: msg.Value}, true
		default:
		}
	}
	return kafka.Record{}, false
}

// CommitOffset marks offset as fully processed for partition. The commit
// floor only advances once every lower offset has also been marked; the
// actual persist happens at Flush cadence.
func (c *Consumer) CommitOffset(partition kafka.PartitionKey, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.partitions[partition]
	if !ok {
		return
	}
	ps.acked[offset] = struct{}{}
}

// Flush folds each partition's acked offsets into its commit floor and
// persists the floor through the Persistence Adapter.
func (c *Consumer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pk, ps := range c.partitions {
		for {
			if _, ok := ps.acked[ps.committed+1]; !ok {
				break
			}
			delete(ps.acked, ps.committed+1)
			ps.committed++
			ps.dirty = true
		}
		if !ps.dirty {
			continue
		}
		if err := c.persistence.PersistConsumerOffset(c.sourceID, pk, ps.committed); err != nil {
			return kerrors.Wrapf(kerrors.KindPersistence, err, "consumer: flush %s", pk)
		}
		ps.dirty = false
		c.metric().Count(c.sourceID, metrics.OffsetFlushed, 1)
	}
	return nil
}

// UnsubscribePartition idempotently removes p from active polling. It
// reports whether a change occurred.
func (c *Consumer) UnsubscribePartition(p kafka.PartitionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.partitions[p]
	if !ok {
		return false
	}
	ps.pc.Close()
	delete(c.partitions, p)
	c.metric().Count(c.sourceID, metrics.PartitionUnsubscribed, 1)
	return true
}

// CurrentState returns the committed offset for every currently assigned
// partition that has one.
func (c *Consumer) CurrentState() kafka.OffsetMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := kafka.NewOffsetMap()
	for pk, ps := range c.partitions {
		if ps.committed >= 0 {
			state.Set(pk, ps.committed)
		}
	}
	return state
}

// RemoveConsumerState clears this source's persisted offsets across all
// currently assigned partitions.
func (c *Consumer) RemoveConsumerState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pk := range c.partitions {
		if err := c.persistence.ClearConsumerOffset(c.sourceID, pk); err != nil {
			return kerrors.Wrapf(kerrors.KindPersistence, err, "consumer: clear state %s", pk)
		}
	}
	return nil
}

// Close releases every partition's broker-side resources.
func (c *Consumer) Close() {
	c.lifecycle.Stop(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for pk, ps := range c.partitions {
			ps.pc.Close()
			delete(c.partitions, pk)
		}
		c.metric().Count(c.sourceID, metrics.ConsumerClosed, 1)
	})
}

