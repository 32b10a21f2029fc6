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

package persistence

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

// Memory is an in-memory Adapter used in tests and in single-process demos.
// Like the etcd-backed Adapter, it is a flat keyspace: there are no
// separate "directory" entries, so removing a leaf never leaves a stale
// parent behind -- pruning is automatic.
type Memory struct {
	mu      sync.Mutex
	opened  bool
	cfg     Config
	entries map[string][]byte
}

// NewMemory returns an unopened Memory adapter.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Open implements Adapter.
func (m *Memory) Open(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return kerrors.New(kerrors.KindPrecondition, "persistence: memory adapter already opened")
	}
	m.cfg = cfg
	m.opened = true
	return nil
}

func (m *Memory) requireOpen() error {
	if !m.opened {
		return kerrors.New(kerrors.KindPrecondition, "persistence: open must precede any other call")
	}
	return nil
}

// PersistConsumerOffset implements Adapter.
func (m *Memory) PersistConsumerOffset(sourceID string, partition kafka.PartitionKey, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	key := consumerOffsetKey(m.cfg.Root, m.cfg.Prefix, sourceID, partition)
	m.entries[key] = []byte(strconv.FormatInt(offset, 10))
	return nil
}

// RetrieveConsumerOffset implements Adapter.
func (m *Memory) RetrieveConsumerOffset(sourceID string, partition kafka.PartitionKey) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return 0, false, err
	}
	key := consumerOffsetKey(m.cfg.Root, m.cfg.Prefix, sourceID, partition)
	raw, ok := m.entries[key]
	if !ok {
		return 0, false, nil
	}
	offset, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, kerrors.Wrap(kerrors.KindPersistence, err, "corrupt consumer offset")
	}
	return offset, true, nil
}

// ClearConsumerOffset implements Adapter.
func (m *Memory) ClearConsumerOffset(sourceID string, partition kafka.PartitionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	delete(m.entries, consumerOffsetKey(m.cfg.Root, m.cfg.Prefix, sourceID, partition))
	return nil
}

// PersistSidelineRequest implements Adapter.
func (m *Memory) PersistSidelineRequest(payloadType kafka.PayloadType, id kafka.SidelineIdentifier, steps []kafka.FilterStep, partition kafka.PartitionKey, start int64, end *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	wire, err := encodeWireRecord(payloadType, partition.Topic, steps, start, end)
	if err != nil {
		return kerrors.Wrap(kerrors.KindPersistence, err, "encode sideline request")
	}
	m.entries[requestKey(m.cfg.Root, m.cfg.Prefix, id, partition)] = wire
	return nil
}

// RetrieveSidelineRequest implements Adapter.
func (m *Memory) RetrieveSidelineRequest(id kafka.SidelineIdentifier, partition kafka.PartitionKey) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return Record{}, false, err
	}
	raw, ok := m.entries[requestKey(m.cfg.Root, m.cfg.Prefix, id, partition)]
	if !ok {
		return Record{}, false, nil
	}
	rec, err := decodeWireRecord(raw)
	if err != nil {
		return Record{}, false, kerrors.Wrap(kerrors.KindPersistence, err, "decode sideline request")
	}
	return rec, true, nil
}

// ClearSidelineRequest implements Adapter.
func (m *Memory) ClearSidelineRequest(id kafka.SidelineIdentifier, partition kafka.PartitionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	delete(m.entries, requestKey(m.cfg.Root, m.cfg.Prefix, id, partition))
	return nil
}

// ListIdentifiers implements Adapter.
func (m *Memory) ListIdentifiers() ([]kafka.SidelineIdentifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return nil, err
	}
	root := requestsRoot(m.cfg.Root, m.cfg.Prefix)
	seen := make(map[kafka.SidelineIdentifier]struct{})
	for key := range m.entries {
		rest, ok := strings.CutPrefix(key, root)
		if !ok {
			continue
		}
		idPart, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		seen[kafka.SidelineIdentifier(idPart)] = struct{}{}
	}
	out := make([]kafka.SidelineIdentifier, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

// ListPartitions implements Adapter.
func (m *Memory) ListPartitions(id kafka.SidelineIdentifier) ([]kafka.PartitionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return nil, err
	}
	prefix := requestPrefix(m.cfg.Root, m.cfg.Prefix, id)
	var out []kafka.PartitionKey
	for key, raw := range m.entries {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		p, err := strconv.ParseInt(rest, 10, 32)
		if err != nil {
			continue
		}
		rec, err := decodeWireRecord(raw)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindPersistence, err, "decode sideline request")
		}
		out = append(out, kafka.PartitionKey{Topic: rec.Topic, Partition: int32(p)})
	}
	return out, nil
}

func encodeWireRecord(payloadType kafka.PayloadType, topic string, steps []kafka.FilterStep, start int64, end *int64) ([]byte, error) {
	blob, err := kafka.EncodeSteps(steps)
	if err != nil {
		return nil, err
	}
	w := wireRecord{
		Type:            payloadType.String(),
		Topic:           topic,
		StartingOffset:  start,
		EndingOffset:    end,
		FilterChainStep: base64.StdEncoding.EncodeToString(blob),
	}
	return json.Marshal(w)
}

func decodeWireRecord(raw []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return Record{}, err
	}
	blob, err := base64.StdEncoding.DecodeString(w.FilterChainStep)
	if err != nil {
		return Record{}, err
	}
	steps, err := kafka.DecodeSteps(blob)
	if err != nil {
		return Record{}, err
	}
	var payloadType kafka.PayloadType
	switch w.Type {
	case kafka.PayloadStart.String():
		payloadType = kafka.PayloadStart
	case kafka.PayloadStop.String():
		payloadType = kafka.PayloadStop
	}
	return Record{
		Type:           payloadType,
		Topic:          w.Topic,
		StartingOffset: w.StartingOffset,
		EndingOffset:   w.EndingOffset,
		Steps:          steps,
	}, nil
}
