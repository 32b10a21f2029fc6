package spout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uber-go/kafka-spout/internal/broker"
	"github.com/uber-go/kafka-spout/internal/buffer"
	"github.com/uber-go/kafka-spout/internal/config"
	"github.com/uber-go/kafka-spout/internal/consumer"
	"github.com/uber-go/kafka-spout/internal/coordinator"
	"github.com/uber-go/kafka-spout/internal/filterchain"
	"github.com/uber-go/kafka-spout/internal/persistence"
	"github.com/uber-go/kafka-spout/internal/retry"
	"github.com/uber-go/kafka-spout/internal/sideline"
	"github.com/uber-go/kafka-spout/internal/source"
	"github.com/uber-go/kafka-spout/kafka"
)

type fakeEmitter struct {
	emitted []kafka.Message
}

func (e *fakeEmitter) Emit(streamID string, value kafka.Value, id kafka.MessageID) {
	e.emitted = append(e.emitted, kafka.Message{ID: id, Value: value})
}

func baseConfig() config.Config {
	cfg := config.Defaults()
	cfg.BrokerHosts = []string{"localhost:9092"}
	cfg.BrokerTopic = "orders"
	cfg.ConsumerIDPrefix = "orders-firehose"
	return cfg
}

func TestBuildPersistenceSelectsByClass(t *testing.T) {
	s := New(baseConfig(), nil, nil)
	_, ok := s.buildPersistence().(*persistence.Memory)
	assert.True(t, ok)

	cfg := baseConfig()
	cfg.PersistenceClass = "etcd"
	s = New(cfg, nil, nil)
	_, ok = s.buildPersistence().(*persistence.Etcd)
	assert.True(t, ok)
}

func TestBuildRetryManagerSelectsByClass(t *testing.T) {
	s := New(baseConfig(), nil, nil)
	_, ok := s.buildRetryManager().(*retry.ExponentialBackoff)
	assert.True(t, ok)

	cfg := baseConfig()
	cfg.RetryClass = "none"
	s = New(cfg, nil, nil)
	assert.Equal(t, retry.NeverRetry{}, s.buildRetryManager())
}

func TestBuildBufferSelectsByClass(t *testing.T) {
	cfg := baseConfig()
	cfg.BufferClass = "fifo"
	s := New(cfg, nil, nil)
	_, ok := s.buildBuffer().(*buffer.FIFO)
	assert.True(t, ok)

	cfg.BufferClass = "roundrobin"
	s = New(cfg, nil, nil)
	_, ok = s.buildBuffer().(*buffer.RoundRobin)
	assert.True(t, ok)

	cfg.BufferClass = "throttled"
	cfg.BufferThrottledRegex = "^ops-.*"
	s = New(cfg, nil, nil)
	_, ok = s.buildBuffer().(*buffer.ThrottledRoundRobin)
	assert.True(t, ok)
}

func TestResolveStartingStateReadsPersistedOffsetsForOwnedPartitions(t *testing.T) {
	fake := broker.NewFake()
	fake.SetPartitions("orders", []int32{0, 1, 2, 3})

	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/spout", Prefix: "test"}))
	require.NoError(t, mem.PersistConsumerOffset("orders-firehose-1", kafka.PartitionKey{Topic: "orders", Partition: 1}, 41))

	state, err := resolveStartingState(mem, "orders-firehose-1", fake, "orders", 1, 2)
	require.NoError(t, err)

	offset, ok := state.Get(kafka.PartitionKey{Topic: "orders", Partition: 1})
	require.True(t, ok)
	assert.Equal(t, int64(41), offset)

	_, ok = state.Get(kafka.PartitionKey{Topic: "orders", Partition: 0})
	assert.False(t, ok)
}

// newWiredSpout assembles a Spout the same way Open does, but against a
// fake broker and in-memory persistence so the test never dials a real
// Kafka cluster.
func newWiredSpout(t *testing.T) (*Spout, *broker.Fake) {
	t.Helper()
	fake := broker.NewFake()
	fake.SetPartitions("orders", []int32{0})

	mem := persistence.NewMemory()
	require.NoError(t, mem.Open(persistence.Config{Root: "/spout", Prefix: "test"}))

	chain := filterchain.New()
	firehoseConsumer := consumer.New("orders-firehose-0", fake, mem, consumer.Options{Topics: []string{"orders"}, WorkerCount: 1}, zap.NewNop())
	firehose := source.New(source.Config{SourceID: "orders-firehose-0", StartingState: kafka.NewOffsetMap()}, firehoseConsumer, chain, retry.NeverRetry{}, mem, kafka.Passthrough, zap.NewNop())

	coord := coordinator.New(coordinator.Config{
		Firehose:      firehose,
		FlushInterval: 10 * time.Millisecond,
		CloseTimeout:  time.Second,
	}, buffer.NewFIFO(16), zap.NewNop())
	require.NoError(t, coord.Open())

	pc, ok := fake.Partition(kafka.PartitionKey{Topic: "orders", Partition: 0})
	require.True(t, ok)
	pc.Push([]byte("v"), 0)

	ctrl := sideline.New(sideline.Config{
		FirehoseID:   "orders-firehose-0",
		Firehose:     firehose,
		Chain:        chain,
		Persistence:  mem,
		Coordinator:  coord,
		Broker:       fake,
		RetryManager: retry.NeverRetry{},
		Deserializer: kafka.Passthrough,
		Logger:       zap.NewNop(),
	})

	s := &Spout{
		cfg:         baseConfig(),
		logger:      zap.NewNop(),
		persist:     mem,
		brokerConn:  fake,
		coordinator: coord,
		sideline:    ctrl,
		firehose:    firehose,
		chain:       chain,
	}
	return s, fake
}

func TestNextTupleEmitsAndAckCommitsOffset(t *testing.T) {
	s, _ := newWiredSpout(t)
	emitter := &fakeEmitter{}
	s.emitter = emitter

	require.Eventually(t, func() bool {
		s.NextTuple()
		return len(emitter.emitted) == 1
	}, time.Second, time.Millisecond)

	s.Ack(emitter.emitted[0].ID)
	s.Fail(kafka.MessageID{SourceID: "orders-firehose-0", Partition: kafka.PartitionKey{Topic: "orders", Partition: 0}, Offset: 999})
}

func TestCloseDrainsCoordinatorAndBroker(t *testing.T) {
	s, fake := newWiredSpout(t)
	s.Close()
	assert.True(t, fake.IsClosed())
}
