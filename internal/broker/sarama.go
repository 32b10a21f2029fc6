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

	"github.com/Shopify/sarama"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

// Config configures the sarama-backed Consumer and CommitOffsetManager.
type Config struct {
	Brokers []string
	GroupID string
}

// SaramaConsumer is the production Consumer, backed directly by
// github.com/Shopify/sarama (not sarama-cluster: see the package doc).
type SaramaConsumer struct {
	client   sarama.Client
	consumer sarama.Consumer
}

// NewSaramaConsumer dials brokers and returns a ready Consumer.
func NewSaramaConsumer(cfg Config) (*SaramaConsumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindBroker, err, "broker: dial")
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return nil, kerrors.Wrap(kerrors.KindBroker, err, "broker: new consumer")
	}
	return &SaramaConsumer{client: client, consumer: consumer}, nil
}

// Partitions implements Consumer.
func (s *SaramaConsumer) Partitions(topic string) ([]int32, error) {
	partitions, err := s.client.Partitions(topic)
	if err != nil {
		return nil, kerrors.Wrapf(kerrors.KindBroker, err, "broker: partitions for %s", topic)
	}
	return partitions, nil
}

// ConsumePartition implements Consumer.
func (s *SaramaConsumer) ConsumePartition(partition kafka.PartitionKey, offset int64) (PartitionConsumer, error) {
	pc, err := s.consumer.ConsumePartition(partition.Topic, partition.Partition, offset)
	if err != nil {
		return nil, kerrors.Wrapf(kerrors.KindBroker, err, "broker: consume partition %s", partition)
	}
	return saramaPartitionConsumer{pc}, nil
}

// Close implements Consumer.
func (s *SaramaConsumer) Close() error {
	if err := s.consumer.Close(); err != nil {
		return kerrors.Wrap(kerrors.KindBroker, err, "broker: close consumer")
	}
	return s.client.Close()
}

type saramaPartitionConsumer struct {
	sarama.PartitionConsumer
}

func (s saramaPartitionConsumer) Close() error {
	return s.PartitionConsumer.Close()
}

// SaramaCommitOffsetManager commits offsets via sarama's OffsetManager,
// storing them under Config.GroupID even though partition assignment is
// static -- this keeps committed offsets visible to the usual Kafka
// consumer-group tooling.
type SaramaCommitOffsetManager struct {
	client sarama.Client
	mgr    sarama.OffsetManager

	mu   sync.Mutex
	poms map[kafka.PartitionKey]sarama.PartitionOffsetManager
}

// NewSaramaCommitOffsetManager returns a CommitOffsetManager sharing the
// given client.
func NewSaramaCommitOffsetManager(client sarama.Client, groupID string) (*SaramaCommitOffsetManager, error) {
	mgr, err := sarama.NewOffsetManagerFromClient(groupID, client)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindBroker, err, "broker: new offset manager")
	}
	return &SaramaCommitOffsetManager{
		client: client,
		mgr:    mgr,
		poms:   make(map[kafka.PartitionKey]sarama.PartitionOffsetManager),
	}, nil
}

// Commit implements CommitOffsetManager.
func (s *SaramaCommitOffsetManager) Commit(partition kafka.PartitionKey, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pom, ok := s.poms[partition]
	if !ok {
		var err error
		pom, err = s.mgr.ManagePartition(partition.Topic, partition.Partition)
		if err != nil {
			return kerrors.Wrapf(kerrors.KindBroker, err, "broker: manage partition %s", partition)
		}
		s.poms[partition] = pom
	}
	pom.MarkOffset(offset, "")
	return nil
}

// Close implements CommitOffsetManager.
func (s *SaramaCommitOffsetManager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pom := range s.poms {
		pom.Close()
	}
	return s.mgr.Close()
}
