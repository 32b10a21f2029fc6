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

// Package broker is the collaborator boundary between the Partitioned Log
// Consumer (spec.md section 4.D) and the underlying Kafka client. Partition
// assignment is static (p mod N == i, spec.md section 4.D), so there is no
// consumer-group rebalance protocol to drive: each BrokerConsumer seeks an
// explicit partition to an explicit offset, the way github.com/Shopify/sarama's
// own Consumer.ConsumePartition works, rather than going through
// github.com/bsm/sarama-cluster's group-membership machinery.
package broker

import (
	"github.com/Shopify/sarama"

	"github.com/uber-go/kafka-spout/kafka"
)

// PartitionConsumer streams messages for one already-seeked partition.
type PartitionConsumer interface {
	// Messages is the read channel for consumed records.
	Messages() <-chan *sarama.ConsumerMessage
	// Errors is the read channel for partition-level consume errors.
	Errors() <-chan *sarama.ConsumerError
	// HighWaterMarkOffset is the broker's high water mark for this
	// partition, i.e. the offset of the next record the broker will
	// produce. Used to compute consumer lag.
	HighWaterMarkOffset() int64
	// Close stops consuming this partition.
	Close() error
}

// Consumer is the BrokerConsumer collaborator: subscribe (ConsumePartition),
// seek (the offset argument to ConsumePartition), and unsubscribe (the
// returned PartitionConsumer's Close) per partition. Commit is separate,
// since offset commit happens on a cadence independent of the read loop --
// see CommitOffsetManager.
type Consumer interface {
	// Partitions returns the partition indices that currently exist for
	// topic, for static assignment (p mod N == i) to select from.
	Partitions(topic string) ([]int32, error)
	// ConsumePartition opens a PartitionConsumer for (topic, partition)
	// starting at offset. Use kafka.DefaultOffset for "broker default"
	// when no starting offset is known.
	ConsumePartition(partition kafka.PartitionKey, offset int64) (PartitionConsumer, error)
	// Close releases all broker-side resources held by this Consumer.
	Close() error
}

// CommitOffsetManager commits consumer offsets back to the broker. Kept
// distinct from Consumer because sarama's offset-manager and consumer
// clients are separate collaborators.
type CommitOffsetManager interface {
	// Commit checkpoints offset (the next offset to read on resume, i.e.
	// commitLevel+1 per spec.md section 4.D) for partition.
	Commit(partition kafka.PartitionKey, offset int64) error
	// Close releases the underlying offset manager.
	Close() error
}
