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

package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uber-go/kafka-spout/internal/broker"
	"github.com/uber-go/kafka-spout/internal/buffer"
	"github.com/uber-go/kafka-spout/internal/consumer"
	"github.com/uber-go/kafka-spout/internal/filterchain"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/retry"
	"github.com/uber-go/kafka-spout/internal/source"
	"github.com/uber-go/kafka-spout/kafka"
)

var passthrough = kafka.DeserializerFunc(func(topic string, partition int32, offset int64, key, value []byte) (kafka.Value, bool) {
	return string(value), true
})

func newTestCoordinator(t *testing.T) (*Coordinator, *broker.Fake) {
	t.Helper()
	fake := broker.NewFake()
	fake.SetPartitions("orders", []int32{0})
	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/sideline", Prefix: "test"}))

	c := consumer.New("firehose", fake, mem, consumer.Options{Topics: []string{"orders"}, WorkerCount: 1}, zap.NewNop())
	chain := filterchain.New()
	firehose := source.New(source.Config{
		SourceID:      "firehose",
		StartingState: kafka.NewOffsetMap(),
	}, c, chain, &retry.NeverRetry{}, mem, passthrough, zap.NewNop())

	coord := New(Config{
		Firehose:      firehose,
		FlushInterval: 10 * time.Millisecond,
		CloseTimeout:  time.Second,
	}, buffer.NewFIFO(16), zap.NewNop())
	return coord, fake
}

func TestOpenStartsFirehoseWorkerAndDeliversMessages(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	require.NoError(t, coord.Open())
	defer coord.Close()

	pc, ok := fake.Partition(kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.True(t, ok)
	pc.Push([]byte("order-1"), 0)

	require.Eventually(t, func() bool {
		msg, ok := coord.NextMessage()
		if !ok {
			return false
		}
		assert.Equal(t, "order-1", msg.Value)
		return true
	}, time.Second, time.Millisecond)
}

func TestAddReplaySourceDuplicateIsPrecondition(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	require.NoError(t, coord.Open())
	defer coord.Close()

	fake2 := broker.NewFake()
	fake2.SetPartitions("orders", []int32{0})
	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/sideline", Prefix: "test"}))
	c := consumer.New("firehose", fake2, mem, consumer.Options{Topics: []string{"orders"}, WorkerCount: 1}, zap.NewNop())
	replay := source.New(source.Config{SourceID: "firehose", StartingState: kafka.NewOffsetMap()}, c, filterchain.New(), &retry.NeverRetry{}, mem, passthrough, zap.NewNop())

	err := coord.AddReplaySource("firehose", replay)
	require.Error(t, err)
}

func TestAckDispatchesToOwningSource(t *testing.T) {
	coord, fake := newTestCoordinator(t)
	require.NoError(t, coord.Open())
	defer coord.Close()

	pc, ok := fake.Partition(kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.True(t, ok)
	pc.Push([]byte("order-1"), 0)

	var msg kafka.Message
	require.Eventually(t, func() bool {
		var ok bool
		msg, ok = coord.NextMessage()
		return ok
	}, time.Second, time.Millisecond)

	assert.NotPanics(t, func() { coord.Ack(msg.ID) })
}

func TestFailForUnknownSourceIsLoggedAndDropped(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	require.NoError(t, coord.Open())
	defer coord.Close()

	assert.NotPanics(t, func() {
		coord.Fail(kafka.MessageID{SourceID: "no-such-source"})
	})
}

func TestCloseUnwedgesWorkerBlockedOnFullBuffer(t *testing.T) {
	fake := broker.NewFake()
	fake.SetPartitions("orders", []int32{0})
	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/sideline", Prefix: "test"}))

	c := consumer.New("firehose", fake, mem, consumer.Options{Topics: []string{"orders"}, WorkerCount: 1}, zap.NewNop())
	chain := filterchain.New()
	firehose := source.New(source.Config{
		SourceID:      "firehose",
		StartingState: kafka.NewOffsetMap(),
	}, c, chain, &retry.NeverRetry{}, mem, passthrough, zap.NewNop())

	coord := New(Config{
		Firehose:      firehose,
		FlushInterval: 10 * time.Millisecond,
		CloseTimeout:  time.Second,
	}, buffer.NewFIFO(1), zap.NewNop())
	require.NoError(t, coord.Open())

	pc, ok := fake.Partition(kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.True(t, ok)
	for i := int64(0); i < 4; i++ {
		pc.Push([]byte("order"), i)
	}
	// Give the worker time to fill the size-1 buffer and block on the next Put.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		coord.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return: worker is wedged on a full buffer")
	}
}

func TestCloseJoinsWorkerAndRemovesSource(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	require.NoError(t, coord.Open())

	coord.Close()

	coord.mu.Lock()
	defer coord.mu.Unlock()
	assert.Empty(t, coord.sources)
}
