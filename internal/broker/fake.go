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

package broker

import (
	"sync"
	"sync/atomic"

	"github.com/Shopify/sarama"

	"github.com/uber-go/kafka-spout/kafka"
)

// Fake is an in-memory Consumer for tests, standing in for a real broker
// connection the way the teacher's mockSaramaConsumer stands in for a real
// sarama.Consumer.
type Fake struct {
	mu         sync.Mutex
	closed     int64
	parts      map[kafka.PartitionKey]*FakePartitionConsumer
	topicParts map[string][]int32
}

// NewFake returns an empty Fake broker.
func NewFake() *Fake {
	return &Fake{
		parts:      make(map[kafka.PartitionKey]*FakePartitionConsumer),
		topicParts: make(map[string][]int32),
	}
}

// SetPartitions fixes the partition indices Partitions(topic) reports,
// for tests to control static assignment.
func (f *Fake) SetPartitions(topic string, partitions []int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topicParts[topic] = partitions
}

// Partitions implements Consumer.
func (f *Fake) Partitions(topic string) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topicParts[topic], nil
}

// ConsumePartition implements Consumer. The returned FakePartitionConsumer
// can be fed records with Push.
func (f *Fake) ConsumePartition(partition kafka.PartitionKey, offset int64) (PartitionConsumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := newFakePartitionConsumer(partition, offset)
	f.parts[partition] = pc
	return pc, nil
}

// Partition returns the FakePartitionConsumer previously opened for
// partition, for tests to drive.
func (f *Fake) Partition(partition kafka.PartitionKey) (*FakePartitionConsumer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc, ok := f.parts[partition]
	return pc, ok
}

// Close implements Consumer.
func (f *Fake) Close() error {
	atomic.StoreInt64(&f.closed, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pc := range f.parts {
		pc.Close()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (f *Fake) IsClosed() bool {
	return atomic.LoadInt64(&f.closed) == 1
}

// FakePartitionConsumer is an in-memory PartitionConsumer a test can push
// synthetic records into.
type FakePartitionConsumer struct {
	partition kafka.PartitionKey
	offset    int64
	msgC      chan *sarama.ConsumerMessage
	errC      chan *sarama.ConsumerError
	closed    int64
	hwm       int64
}

func newFakePartitionConsumer(partition kafka.PartitionKey, offset int64) *FakePartitionConsumer {
	return &FakePartitionConsumer{
		partition: partition,
		offset:    offset,
		msgC:      make(chan *sarama.ConsumerMessage, 64),
		errC:      make(chan *sarama.ConsumerError, 1),
	}
}

// Push enqueues a record as though the broker produced it.
func (f *FakePartitionConsumer) Push(value []byte, offset int64) {
	f.msgC <- &sarama.ConsumerMessage{
		Topic:     f.partition.Topic,
		Partition: f.partition.Partition,
		Offset:    offset,
		Value:     value,
	}
	atomic.StoreInt64(&f.hwm, offset+1)
}

// Messages implements PartitionConsumer.
func (f *FakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.msgC }

// Errors implements PartitionConsumer.
func (f *FakePartitionConsumer) Errors() <-chan *sarama.ConsumerError { return f.errC }

// HighWaterMarkOffset implements PartitionConsumer.
func (f *FakePartitionConsumer) HighWaterMarkOffset() int64 {
	return atomic.LoadInt64(&f.hwm)
}

// Close implements PartitionConsumer.
func (f *FakePartitionConsumer) Close() error {
	if atomic.CompareAndSwapInt64(&f.closed, 0, 1) {
		close(f.msgC)
		close(f.errC)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (f *FakePartitionConsumer) IsClosed() bool {
	return atomic.LoadInt64(&f.closed) == 1
}

// FakeCommitOffsetManager is an in-memory CommitOffsetManager for tests.
type FakeCommitOffsetManager struct {
	mu      sync.Mutex
	offsets map[kafka.PartitionKey]int64
}

// NewFakeCommitOffsetManager returns an empty FakeCommitOffsetManager.
func NewFakeCommitOffsetManager() *FakeCommitOffsetManager {
	return &FakeCommitOffsetManager{offsets: make(map[kafka.PartitionKey]int64)}
}

// Commit implements CommitOffsetManager.
func (f *FakeCommitOffsetManager) Commit(partition kafka.PartitionKey, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets[partition] = offset
	return nil
}

// Committed returns the last committed offset for partition.
func (f *FakeCommitOffsetManager) Committed(partition kafka.PartitionKey) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offset, ok := f.offsets[partition]
	return offset, ok
}

// Close implements CommitOffsetManager.
func (f *FakeCommitOffsetManager) Close() error { return nil }
