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

package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/internal/broker"
	"github.com/uber-go/kafka-spout/internal/consumer"
	"github.com/uber-go/kafka-spout/internal/filterchain"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/retry"
	"github.com/uber-go/kafka-spout/kafka"
)

var passthroughDeserializer = kafka.DeserializerFunc(func(topic string, partition int32, offset int64, key, value []byte) (kafka.Value, bool) {
	if string(value) == "undecodable" {
		return nil, false
	}
	return string(value), true
})

type testHarness struct {
	fake   *broker.Fake
	mem    *persistence.Memory
	chain  *filterchain.Chain
	retry  retry.Manager
	source *Source
}

func newHarness(t *testing.T, bounded bool, endingState kafka.OffsetMap) *testHarness {
	t.Helper()
	fake := broker.NewFake()
	fake.SetPartitions("orders", []int32{0})

	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/sideline", Prefix: "test"}))

	c := consumer.New("source-1", fake, mem, consumer.Options{Topics: []string{"orders"}, WorkerCount: 1}, zap.NewNop())
	chain := filterchain.New()
	retryMgr := &retry.NeverRetry{}

	cfg := Config{
		SourceID:      "source-1",
		Bounded:       bounded,
		StartingState: kafka.NewOffsetMap(),
		EndingState:   endingState,
		Identifier:    "req-1",
	}
	src := New(cfg, c, chain, retryMgr, mem, passthroughDeserializer, zap.NewNop())
	return &testHarness{fake: fake, mem: mem, chain: chain, retry: retryMgr, source: src}
}

func (h *testHarness) push(t *testing.T, offset int64, value string) {
	t.Helper()
	pc, ok := h.fake.Partition(kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.True(t, ok)
	pc.Push([]byte(value), offset)
}

func TestOpenTwiceIsPrecondition(t *testing.T) {
	h := newHarness(t, false, kafka.NewOffsetMap())
	require.NoError(t, h.source.Open())
	err := h.source.Open()
	require.Error(t, err)
	assert.True(t, kerrors.Is(err, kerrors.KindPrecondition))
}

func TestNextMessageEmitsUnfilteredRecord(t *testing.T) {
	h := newHarness(t, false, kafka.NewOffsetMap())
	require.NoError(t, h.source.Open())
	h.push(t, 0, "hello")

	msg, ok := h.source.NextMessage()
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Value)
	assert.EqualValues(t, 0, msg.ID.Offset)
}

func TestNextMessageDivertsFilteredRecord(t *testing.T) {
	h := newHarness(t, false, kafka.NewOffsetMap())
	require.NoError(t, h.chain.AddSteps("f1", []kafka.FilterStep{kafka.ValueEqualsStep{Want: "skip-me"}}))
	require.NoError(t, h.source.Open())
	h.push(t, 0, "skip-me")

	_, ok := h.source.NextMessage()
	assert.False(t, ok)

	require.NoError(t, h.source.Flush())
	offset, ok, err := h.mem.RetrieveConsumerOffset("source-1", kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, offset, "filtered record must be self-acked")
}

func TestNextMessageSelfAcksUndeserializableRecord(t *testing.T) {
	h := newHarness(t, false, kafka.NewOffsetMap())
	require.NoError(t, h.source.Open())
	h.push(t, 0, "undecodable")

	_, ok := h.source.NextMessage()
	assert.False(t, ok)

	require.NoError(t, h.source.Flush())
	_, ok, err := h.mem.RetrieveConsumerOffset("source-1", kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAckRemovesTrackedMessage(t *testing.T) {
	h := newHarness(t, false, kafka.NewOffsetMap())
	require.NoError(t, h.source.Open())
	h.push(t, 0, "hello")

	msg, ok := h.source.NextMessage()
	require.True(t, ok)

	h.source.Ack(msg.ID)
	assert.Empty(t, h.source.tracked)
}

func TestFailWithoutRetryTreatsAsAck(t *testing.T) {
	h := newHarness(t, false, kafka.NewOffsetMap())
	require.NoError(t, h.source.Open())
	h.push(t, 0, "hello")

	msg, ok := h.source.NextMessage()
	require.True(t, ok)

	h.source.Fail(msg.ID) // NeverRetry: always treated as ack
	assert.Empty(t, h.source.tracked)
}

func TestBoundedOvershootUnsubscribesWithoutEmitting(t *testing.T) {
	end := kafka.NewOffsetMap()
	p := kafka.PartitionKey{Topic: "orders", Partition: 0}
	end.Set(p, 5)
	h := newHarness(t, true, end)
	require.NoError(t, h.source.Open())
	h.push(t, 6, "too-far")

	_, ok := h.source.NextMessage()
	assert.False(t, ok)
	assert.False(t, h.source.consumer.UnsubscribePartition(p), "already unsubscribed by overshoot")
}

func TestAttemptCompleteTransitionsToCompleting(t *testing.T) {
	end := kafka.NewOffsetMap()
	p := kafka.PartitionKey{Topic: "orders", Partition: 0}
	end.Set(p, 0)
	h := newHarness(t, true, end)
	require.NoError(t, h.source.Open())
	h.push(t, 0, "hello")

	msg, ok := h.source.NextMessage()
	require.True(t, ok)
	h.source.Ack(msg.ID)

	require.NoError(t, h.source.Flush())
	assert.Equal(t, StateCompleting, h.source.State())
	assert.True(t, h.source.StopRequested())
}

func TestCloseAfterCompletingClearsPersistedState(t *testing.T) {
	end := kafka.NewOffsetMap()
	p := kafka.PartitionKey{Topic: "orders", Partition: 0}
	end.Set(p, 0)
	start := kafka.NewOffsetMap()
	start.Set(p, -1)

	h := newHarness(t, true, end)
	h.source.cfg.StartingState = start
	require.NoError(t, h.source.Open())
	h.push(t, 0, "hello")

	msg, ok := h.source.NextMessage()
	require.True(t, ok)
	h.source.Ack(msg.ID)
	require.NoError(t, h.source.Flush())
	require.Equal(t, StateCompleting, h.source.State())

	require.NoError(t, h.mem.PersistSidelineRequest(kafka.PayloadStart, "req-1", nil, p, -1, nil))

	require.NoError(t, h.source.Close())
	assert.Equal(t, StateClosed, h.source.State())

	_, ok, err := h.mem.RetrieveSidelineRequest("req-1", p)
	require.NoError(t, err)
	assert.False(t, ok)
}
