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

package sideline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uber-go/kafka-spout/internal/broker"
	"github.com/uber-go/kafka-spout/internal/buffer"
	"github.com/uber-go/kafka-spout/internal/consumer"
	"github.com/uber-go/kafka-spout/internal/coordinator"
	"github.com/uber-go/kafka-spout/internal/filterchain"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/retry"
	"github.com/uber-go/kafka-spout/internal/source"
	"github.com/uber-go/kafka-spout/kafka"
)

var passthrough = kafka.DeserializerFunc(func(topic string, partition int32, offset int64, key, value []byte) (kafka.Value, bool) {
	return string(value), true
})

type valueStep struct{ want string }

func (s valueStep) Match(m kafka.Message) bool      { return m.Value.(string) == s.want }
func (s valueStep) Equal(other kafka.FilterStep) bool {
	o, ok := other.(valueStep)
	return ok && o.want == s.want
}
func (s valueStep) Encode() ([]byte, error) { return []byte(s.want), nil }
func (s valueStep) Kind() string            { return "sideline-test-value" }

type harness struct {
	fake  *broker.Fake
	mem   *persistence.Memory
	chain *filterchain.Chain
	coord *coordinator.Coordinator
	ctrl  *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := broker.NewFake()
	fake.SetPartitions("orders", []int32{0})

	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/sideline", Prefix: "test"}))

	chain := filterchain.New()
	firehoseConsumer := consumer.New("firehose", fake, mem, consumer.Options{Topics: []string{"orders"}, WorkerCount: 1}, zap.NewNop())
	firehose := source.New(source.Config{SourceID: "firehose", StartingState: kafka.NewOffsetMap()}, firehoseConsumer, chain, &retry.NeverRetry{}, mem, passthrough, zap.NewNop())

	coord := coordinator.New(coordinator.Config{
		Firehose:      firehose,
		FlushInterval: 10 * time.Millisecond,
		CloseTimeout:  time.Second,
	}, buffer.NewFIFO(16), zap.NewNop())
	require.NoError(t, coord.Open())

	ctrl := New(Config{
		FirehoseID:      "firehose",
		Firehose:        firehose,
		Chain:           chain,
		Persistence:     mem,
		Coordinator:     coord,
		Broker:          fake,
		RetryManager:    &retry.NeverRetry{},
		Deserializer:    passthrough,
		Logger:          zap.NewNop(),
	})

	return &harness{fake: fake, mem: mem, chain: chain, coord: coord, ctrl: ctrl}
}

func TestStartSidelineAttachesSteps(t *testing.T) {
	h := newHarness(t)
	defer h.coord.Close()

	id, err := h.ctrl.StartSideline(kafka.SidelineRequest{Steps: []kafka.FilterStep{valueStep{want: "skip"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, h.chain.Len())
}

func TestStopSidelineWithoutStartIsNoop(t *testing.T) {
	h := newHarness(t)
	defer h.coord.Close()

	err := h.ctrl.StopSideline(kafka.SidelineRequest{Steps: []kafka.FilterStep{valueStep{want: "skip"}}})
	require.NoError(t, err)
}

func TestStopSidelineDetachesAndSpawnsReplay(t *testing.T) {
	h := newHarness(t)
	defer h.coord.Close()

	req := kafka.SidelineRequest{Steps: []kafka.FilterStep{valueStep{want: "skip"}}}
	_, err := h.ctrl.StartSideline(req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.chain.Len())

	err = h.ctrl.StopSideline(req)
	require.NoError(t, err)
	assert.Equal(t, 0, h.chain.Len())
}
