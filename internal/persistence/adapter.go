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

// Package persistence implements the durable KV the core uses for
// consumer offsets and sideline requests (spec.md section 4.B): an
// etcd-backed Adapter for production and an in-memory Adapter for tests.
package persistence

import (
	"fmt"
	"time"

	"github.com/uber-go/kafka-spout/kafka"
)

// Config configures an Adapter. Endpoints/DialTimeout are only meaningful
// for the etcd-backed Adapter; the in-memory Adapter ignores them.
type Config struct {
	Root        string
	Prefix      string
	Endpoints   []string
	DialTimeout time.Duration
}

// Record is the rehydrated form of one persisted sideline request entry:
// one per (identifier, partition), matching the JSON layout in spec.md
// section 6.
type Record struct {
	Type           kafka.PayloadType
	Topic          string
	StartingOffset int64
	EndingOffset   *int64
	Steps          []kafka.FilterStep
}

// Adapter is the capability interface described in spec.md section 4.B.
// Open must precede any other call; calling any other method first (or
// calling Open twice) is a Precondition error.
type Adapter interface {
	// Open must be called exactly once before any other method.
	Open(cfg Config) error

	// PersistConsumerOffset overwrites the committed offset for
	// (sourceID, partition), creating intermediate paths as needed.
	PersistConsumerOffset(sourceID string, partition kafka.PartitionKey, offset int64) error
	// RetrieveConsumerOffset returns the stored offset, or ok=false if
	// none has been persisted.
	RetrieveConsumerOffset(sourceID string, partition kafka.PartitionKey) (offset int64, ok bool, err error)
	// ClearConsumerOffset removes the leaf and prunes now-empty parents up
	// to the sourceID node.
	ClearConsumerOffset(sourceID string, partition kafka.PartitionKey) error

	// PersistSidelineRequest writes one (identifier, partition) entry.
	// end is nil for a START payload and non-nil once the sideline stops.
	PersistSidelineRequest(payloadType kafka.PayloadType, id kafka.SidelineIdentifier, steps []kafka.FilterStep, partition kafka.PartitionKey, start int64, end *int64) error
	// RetrieveSidelineRequest returns the stored record for (identifier,
	// partition), or ok=false if none exists.
	RetrieveSidelineRequest(id kafka.SidelineIdentifier, partition kafka.PartitionKey) (rec Record, ok bool, err error)
	// ClearSidelineRequest removes one (identifier, partition) entry and
	// prunes now-empty parents up to the identifier node.
	ClearSidelineRequest(id kafka.SidelineIdentifier, partition kafka.PartitionKey) error
	// ListIdentifiers returns every identifier with at least one
	// persisted request entry.
	ListIdentifiers() ([]kafka.SidelineIdentifier, error)
	// ListPartitions returns every partition with a persisted request
	// entry for id.
	ListPartitions(id kafka.SidelineIdentifier) ([]kafka.PartitionKey, error)
}

func consumerOffsetKey(root, prefix, sourceID string, partition kafka.PartitionKey) string {
	return fmt.Sprintf("%s/%s/consumers/%s/%d", root, prefix, sourceID, partition.Partition)
}

func consumerPrefix(root, prefix, sourceID string) string {
	return fmt.Sprintf("%s/%s/consumers/%s/", root, prefix, sourceID)
}

func requestKey(root, prefix string, id kafka.SidelineIdentifier, partition kafka.PartitionKey) string {
	return fmt.Sprintf("%s/%s/requests/%s/%d", root, prefix, id, partition.Partition)
}

func requestPrefix(root, prefix string, id kafka.SidelineIdentifier) string {
	return fmt.Sprintf("%s/%s/requests/%s/", root, prefix, id)
}

func requestsRoot(root, prefix string) string {
	return fmt.Sprintf("%s/%s/requests/", root, prefix)
}

// wireRecord is the JSON-on-the-wire shape from spec.md section 6. Topic
// carries the partition's topic, since the key itself only encodes the
// partition index -- without it, recovering a PartitionKey from a listed
// entry would silently zero out Topic and fail every OffsetMap lookup
// keyed by the real (topic, partition) pair.
type wireRecord struct {
	Type            string `json:"type"`
	Topic           string `json:"topic"`
	StartingOffset  int64  `json:"startingOffset"`
	EndingOffset    *int64 `json:"endingOffset"`
	FilterChainStep string `json:"filterChainStep"`
}
