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
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

// maxPersistRetries bounds the backoff retry loop for a single etcd
// mutation before the error is surfaced to the caller, per spec.md
// section 7's Persistence error kind.
const maxPersistRetries = 3

// Etcd is the production Adapter, backed by go.etcd.io/etcd/client/v3.
// Keys are flat (`<root>/<prefix>/...`); etcd has no directory nodes, so
// clearing a leaf never needs to prune a parent.
type Etcd struct {
	logger *zap.Logger

	mu     sync.Mutex
	opened bool
	cfg    Config
	client *clientv3.Client
}

// NewEtcd returns an unopened Etcd adapter. logger is used for retry and
// failure diagnostics.
func NewEtcd(logger *zap.Logger) *Etcd {
	return &Etcd{logger: logger}
}

// Open implements Adapter.
func (e *Etcd) Open(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened {
		return kerrors.New(kerrors.KindPrecondition, "persistence: etcd adapter already opened")
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return kerrors.Wrap(kerrors.KindConfiguration, err, "persistence: dial etcd")
	}
	e.client = client
	e.cfg = cfg
	e.opened = true
	return nil
}

func (e *Etcd) requireOpen() error {
	if !e.opened {
		return kerrors.New(kerrors.KindPrecondition, "persistence: open must precede any other call")
	}
	return nil
}

// withRetry runs op up to maxPersistRetries times with linear backoff,
// wrapping the final failure as a Persistence error.
func (e *Etcd) withRetry(description string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxPersistRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DialTimeout)
		lastErr = op(ctx)
		cancel()
		if lastErr == nil {
			return nil
		}
		e.logger.Warn("persistence operation failed, retrying",
			zap.String("op", description), zap.Int("attempt", attempt), zap.Error(lastErr))
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return kerrors.Wrapf(kerrors.KindPersistence, lastErr, "%s: exhausted retries", description)
}

// PersistConsumerOffset implements Adapter.
func (e *Etcd) PersistConsumerOffset(sourceID string, partition kafka.PartitionKey, offset int64) error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	key := consumerOffsetKey(e.cfg.Root, e.cfg.Prefix, sourceID, partition)
	value := strconv.FormatInt(offset, 10)
	return e.withRetry("persistConsumerOffset", func(ctx context.Context) error {
		_, err := e.client.Put(ctx, key, value)
		return err
	})
}

// RetrieveConsumerOffset implements Adapter.
func (e *Etcd) RetrieveConsumerOffset(sourceID string, partition kafka.PartitionKey) (int64, bool, error) {
	if err := e.requireOpen(); err != nil {
		return 0, false, err
	}
	key := consumerOffsetKey(e.cfg.Root, e.cfg.Prefix, sourceID, partition)
	var resp *clientv3.GetResponse
	err := e.withRetry("retrieveConsumerOffset", func(ctx context.Context) error {
		var getErr error
		resp, getErr = e.client.Get(ctx, key)
		return getErr
	})
	if err != nil {
		return 0, false, err
	}
	if len(resp.Kvs) == 0 {
		return 0, false, nil
	}
	offset, err := strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, false, kerrors.Wrap(kerrors.KindPersistence, err, "corrupt consumer offset")
	}
	return offset, true, nil
}

// ClearConsumerOffset implements Adapter.
func (e *Etcd) ClearConsumerOffset(sourceID string, partition kafka.PartitionKey) error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	key := consumerOffsetKey(e.cfg.Root, e.cfg.Prefix, sourceID, partition)
	return e.withRetry("clearConsumerOffset", func(ctx context.Context) error {
		_, err := e.client.Delete(ctx, key)
		return err
	})
}

// PersistSidelineRequest implements Adapter.
func (e *Etcd) PersistSidelineRequest(payloadType kafka.PayloadType, id kafka.SidelineIdentifier, steps []kafka.FilterStep, partition kafka.PartitionKey, start int64, end *int64) error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	blob, err := kafka.EncodeSteps(steps)
	if err != nil {
		return kerrors.Wrap(kerrors.KindPersistence, err, "encode sideline request")
	}
	wire := wireRecord{
		Type:            payloadType.String(),
		Topic:           partition.Topic,
		StartingOffset:  start,
		EndingOffset:    end,
		FilterChainStep: base64.StdEncoding.EncodeToString(blob),
	}
	value, err := json.Marshal(wire)
	if err != nil {
		return kerrors.Wrap(kerrors.KindPersistence, err, "marshal sideline request")
	}
	key := requestKey(e.cfg.Root, e.cfg.Prefix, id, partition)
	return e.withRetry("persistSidelineRequest", func(ctx context.Context) error {
		_, putErr := e.client.Put(ctx, key, string(value))
		return putErr
	})
}

// RetrieveSidelineRequest implements Adapter.
func (e *Etcd) RetrieveSidelineRequest(id kafka.SidelineIdentifier, partition kafka.PartitionKey) (Record, bool, error) {
	if err := e.requireOpen(); err != nil {
		return Record{}, false, err
	}
	key := requestKey(e.cfg.Root, e.cfg.Prefix, id, partition)
	var resp *clientv3.GetResponse
	err := e.withRetry("retrieveSidelineRequest", func(ctx context.Context) error {
		var getErr error
		resp, getErr = e.client.Get(ctx, key)
		return getErr
	})
	if err != nil {
		return Record{}, false, err
	}
	if len(resp.Kvs) == 0 {
		return Record{}, false, nil
	}
	rec, err := decodeWireValue(resp.Kvs[0].Value)
	if err != nil {
		return Record{}, false, kerrors.Wrap(kerrors.KindPersistence, err, "decode sideline request")
	}
	return rec, true, nil
}

// ClearSidelineRequest implements Adapter.
func (e *Etcd) ClearSidelineRequest(id kafka.SidelineIdentifier, partition kafka.PartitionKey) error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	key := requestKey(e.cfg.Root, e.cfg.Prefix, id, partition)
	return e.withRetry("clearSidelineRequest", func(ctx context.Context) error {
		_, err := e.client.Delete(ctx, key)
		return err
	})
}

// ListIdentifiers implements Adapter.
func (e *Etcd) ListIdentifiers() ([]kafka.SidelineIdentifier, error) {
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	root := requestsRoot(e.cfg.Root, e.cfg.Prefix)
	var resp *clientv3.GetResponse
	err := e.withRetry("listIdentifiers", func(ctx context.Context) error {
		var getErr error
		resp, getErr = e.client.Get(ctx, root, clientv3.WithPrefix(), clientv3.WithKeysOnly())
		return getErr
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[kafka.SidelineIdentifier]struct{})
	for _, kv := range resp.Kvs {
		rest, ok := strings.CutPrefix(string(kv.Key), root)
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
func (e *Etcd) ListPartitions(id kafka.SidelineIdentifier) ([]kafka.PartitionKey, error) {
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	prefix := requestPrefix(e.cfg.Root, e.cfg.Prefix, id)
	var resp *clientv3.GetResponse
	err := e.withRetry("listPartitions", func(ctx context.Context) error {
		var getErr error
		resp, getErr = e.client.Get(ctx, prefix, clientv3.WithPrefix())
		return getErr
	})
	if err != nil {
		return nil, err
	}
	out := make([]kafka.PartitionKey, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		rest, ok := strings.CutPrefix(string(kv.Key), prefix)
		if !ok {
			continue
		}
		p, err := strconv.ParseInt(rest, 10, 32)
		if err != nil {
			continue
		}
		rec, err := decodeWireValue(kv.Value)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindPersistence, err, "decode sideline request")
		}
		out = append(out, kafka.PartitionKey{Topic: rec.Topic, Partition: int32(p)})
	}
	return out, nil
}

// Close releases the underlying etcd client connection.
func (e *Etcd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func decodeWireValue(raw []byte) (Record, error) {
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
