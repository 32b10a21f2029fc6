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

// Package source implements the Virtual Source: one logical producer of
// messages, combining a Partitioned Log Consumer, a Filter Chain and a
// Retry Manager, with optional start/end bounds for bounded replay.
package source

import (
	"sync"

	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/internal/consumer"
	"github.com/uber-go/kafka-spout/internal/filterchain"
	"github.com/uber-go/kafka-spout/internal/metrics"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/retry"
	"github.com/uber-go/kafka-spout/internal/util"
	"github.com/uber-go/kafka-spout/kafka"
)

// State is one of the Virtual Source's lifecycle states.
type State int

const (
	// StateNew is the initial state, before Open.
	StateNew State = iota
	// StateRunning is the normal operating state.
	StateRunning
	// StateCompleting is entered by a bounded source once it has caught
	// up to its ending offsets and drained its tracked messages; it is
	// waiting for Close.
	StateCompleting
	// StateClosed is terminal.
	StateClosed
)

// Config is the fixed configuration a Source is opened with.
type Config struct {
	SourceID string
	// Bounded sources stop once every partition in EndingState reaches
	// its EndingState offset and no tracked messages remain.
	Bounded       bool
	StartingState kafka.OffsetMap
	EndingState   kafka.OffsetMap
	// Identifier is the sideline request this source replays, used to
	// prune persisted request entries on a completed close.
	Identifier kafka.SidelineIdentifier
}

// Source is the Virtual Source (spec.md section 4.F).
type Source struct {
	cfg          Config
	consumer     *consumer.Consumer
	chain        *filterchain.Chain
	retryMgr     retry.Manager
	persistence  persistence.Adapter
	deserializer kafka.Deserializer
	logger       *zap.Logger
	lifecycle    *util.RunLifecycle
	metrics      kafka.Metrics

	mu            sync.Mutex
	state         State
	tracked       map[kafka.MessageID]kafka.Message
	stopRequested bool
	stopCh        chan struct{}
}

// SetMetrics attaches a metrics sink. Unset is equivalent to
// kafka.NopMetrics{}.
func (s *Source) SetMetrics(m kafka.Metrics) { s.metrics = m }

func (s *Source) metric() kafka.Metrics {
	if s.metrics == nil {
		return kafka.NopMetrics{}
	}
	return s.metrics
}

// New returns an unopened Source.
func New(cfg Config, c *consumer.Consumer, chain *filterchain.Chain, retryMgr retry.Manager, persist persistence.Adapter, deserializer kafka.Deserializer, logger *zap.Logger) *Source {
	return &Source{
		cfg:          cfg,
		consumer:     c,
		chain:        chain,
		retryMgr:     retryMgr,
		persistence:  persist,
		deserializer: deserializer,
		logger:       logger,
		lifecycle:    util.NewRunLifecycle("source-"+cfg.SourceID, logger),
		tracked:      make(map[kafka.MessageID]kafka.Message),
		stopCh:       make(chan struct{}),
	}
}

// Open resolves the consumer against StartingState. Calling Open more than
// once is a Precondition error.
func (s *Source) Open() error {
	return s.lifecycle.Start(func() error {
		if err := s.consumer.Open(s.cfg.StartingState); err != nil {
			return err
		}
		s.setState(StateRunning)
		return nil
	})
}

func (s *Source) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StopRequested reports whether this source's owner should stop its
// worker and Close it, either because attemptComplete caught up a bounded
// source or because RequestStop was called externally.
func (s *Source) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// RequestStop asks the owning worker to stop polling this source and
// close it on its next check. Safe to call from any goroutine; used by
// the Coordinator to wind down the firehose and any still-running replay
// sources on shutdown. A source stopped this way takes the direct
// Running-to-Closed path rather than Completing, since it may not have
// caught up to any ending state.
func (s *Source) RequestStop() {
	s.markStopRequested()
}

// StopSignal returns a channel closed once this source's worker has been
// asked to stop, either via RequestStop or a bounded source catching up to
// its ending state. The Coordinator selects on it so a blocking Buffer.Put
// is interrupted rather than wedging the worker on a full queue.
func (s *Source) StopSignal() <-chan struct{} {
	return s.stopCh
}

// markStopRequested sets stopRequested and closes stopCh exactly once.
func (s *Source) markStopRequested() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		return
	}
	s.stopRequested = true
	close(s.stopCh)
}

// CurrentState returns the committed offset for every partition this
// source's consumer currently holds. The Sideline Controller snapshots
// this on the firehose to bound a new replay source at start and stop.
func (s *Source) CurrentState() kafka.OffsetMap {
	return s.consumer.CurrentState()
}

// NextMessage evaluates the steps of spec.md section 4.F in order; the
// first step that produces a message returns it, otherwise NextMessage
// returns ok=false.
func (s *Source) NextMessage() (kafka.Message, bool) {
	if id, ok := s.retryMgr.NextEligible(); ok {
		s.mu.Lock()
		msg, tracked := s.tracked[id]
		s.mu.Unlock()
		if tracked {
			return msg, true
		}
		// Yielded an id we're no longer tracking: treat as spuriously
		// failed and fall through to polling a fresh record.
		s.retryMgr.Acked(id)
	}

	rec, ok := s.consumer.NextRecord()
	if !ok {
		return kafka.Message{}, false
	}

	id := kafka.MessageID{Partition: rec.Partition, Offset: rec.Offset, SourceID: s.cfg.SourceID}

	if s.cfg.Bounded {
		if end, ok := s.cfg.EndingState.Get(rec.Partition); ok && rec.Offset > end {
			s.consumer.UnsubscribePartition(rec.Partition)
			return kafka.Message{}, false
		}
	}

	value, ok := s.deserializer.Deserialize(rec.Partition.Topic, rec.Partition.Partition, rec.Offset, rec.Key, rec.Value)
	if !ok {
		s.consumer.CommitOffset(rec.Partition, rec.Offset)
		s.metric().Count(s.cfg.SourceID, metrics.MessagesUndecodable, 1)
		return kafka.Message{}, false
	}

	msg := kafka.Message{ID: id, Value: value}
	if s.chain.Match(msg) {
		s.consumer.CommitOffset(rec.Partition, rec.Offset)
		s.metric().Count(s.cfg.SourceID, metrics.MessagesFiltered, 1)
		return kafka.Message{}, false
	}

	s.mu.Lock()
	s.tracked[id] = msg
	s.mu.Unlock()
	s.metric().Count(s.cfg.SourceID, metrics.MessagesEmitted, 1)
	return msg, true
}

// Ack commits id's offset, drops it from tracking, and tells the retry
// manager it succeeded.
func (s *Source) Ack(id kafka.MessageID) {
	s.consumer.CommitOffset(id.Partition, id.Offset)
	s.mu.Lock()
	delete(s.tracked, id)
	s.mu.Unlock()
	s.retryMgr.Acked(id)
	s.metric().Count(s.cfg.SourceID, metrics.MessagesAcked, 1)
}

// Fail reports id as failed. If the retry manager has exhausted retries
// for id, it is treated as an ack (committed and dropped); otherwise it
// stays tracked and is scheduled for re-emission.
func (s *Source) Fail(id kafka.MessageID) {
	if !s.retryMgr.RetryFurther(id) {
		s.Ack(id)
		return
	}
	s.retryMgr.Failed(id)
	s.metric().Count(s.cfg.SourceID, metrics.MessagesRetried, 1)
}

// Flush asks the consumer to persist its commit floor, then attempts to
// complete a bounded source that has caught up.
func (s *Source) Flush() error {
	if err := s.consumer.Flush(); err != nil {
		return err
	}
	return s.attemptComplete()
}

// attemptComplete is a no-op for unbounded sources. For bounded sources,
// once tracked-messages is empty and every partition has caught up to its
// ending offset, it unsubscribes every partition and transitions to
// StateCompleting, requesting the owner close this source.
func (s *Source) attemptComplete() error {
	if !s.cfg.Bounded {
		return nil
	}
	s.mu.Lock()
	if len(s.tracked) > 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	current := s.consumer.CurrentState()
	for _, pk := range s.cfg.EndingState.Partitions() {
		end, _ := s.cfg.EndingState.Get(pk)
		cur, ok := current.Get(pk)
		if !ok || cur < end {
			return nil
		}
	}

	for _, pk := range s.cfg.EndingState.Partitions() {
		s.consumer.UnsubscribePartition(pk)
	}
	s.setState(StateCompleting)
	s.markStopRequested()
	s.logger.Debug("virtual source caught up to ending state", zap.String("sourceId", s.cfg.SourceID))
	s.metric().Count(s.cfg.SourceID, metrics.SourceCompleted, 1)
	return nil
}

// Close releases the consumer. If this source reached StateCompleting, it
// also clears its persisted consumer offsets and the sideline request
// entries for its attached identifier; otherwise it flushes outstanding
// offsets first.
func (s *Source) Close() error {
	var closeErr error
	s.lifecycle.Stop(func() {
		if s.State() == StateCompleting {
			closeErr = s.clearPersistedState()
		} else {
			closeErr = s.consumer.Flush()
		}
		s.consumer.Close()
		s.setState(StateClosed)
	})
	if closeErr != nil {
		return kerrors.Wrapf(kerrors.KindPersistence, closeErr, "source: close %s", s.cfg.SourceID)
	}
	return nil
}

func (s *Source) clearPersistedState() error {
	for _, pk := range s.cfg.StartingState.Partitions() {
		if err := s.persistence.ClearConsumerOffset(s.cfg.SourceID, pk); err != nil {
			return err
		}
		if err := s.persistence.ClearSidelineRequest(s.cfg.Identifier, pk); err != nil {
			return err
		}
	}
	return nil
}
