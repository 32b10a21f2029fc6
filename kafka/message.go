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

package kafka

import "fmt"

// DefaultOffset requests the broker-resolved default starting offset when
// no committed offset is known for a partition. Numerically equal to
// github.com/Shopify/sarama's OffsetOldest so broker implementations can
// pass it straight through.
const DefaultOffset int64 = -2

// MessageID is the opaque handle a host hands back to ack/fail. It is
// globally unique across a running process.
type MessageID struct {
	Partition PartitionKey
	Offset    int64
	SourceID  string
}

// String renders a MessageID for logs; it is not meant to be parsed back.
func (id MessageID) String() string {
	return fmt.Sprintf("%s/%s@%d", id.SourceID, id.Partition, id.Offset)
}

// Record is a raw, still-serialized record as handed back by the broker
// client: the portion of a Kafka message the core cares about before
// deserialization.
type Record struct {
	Partition PartitionKey
	Offset    int64
	Key       []byte
	Value     []byte
}

// Value is the deserialized payload of a Message. The core never inspects
// its contents; it only threads it between the Deserializer and the host.
type Value interface{}

// Message is a single record, deserialized, en route to the host. It is
// created when a VirtualSource emits a record and destroyed when the host
// acks or permanently fails it.
type Message struct {
	ID    MessageID
	Value Value
}
