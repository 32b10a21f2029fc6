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

// OffsetMap is a value type mapping a partition to the last fully
// acknowledged offset for that partition. The next offset to consume for a
// partition p is Get(p)+1. Set mutates the receiver in place; Merge and
// Clone return new maps and leave the receiver unchanged. The zero value
// is ready to use.
type OffsetMap struct {
	offsets map[PartitionKey]int64
}

// NewOffsetMap returns an empty OffsetMap.
func NewOffsetMap() OffsetMap {
	return OffsetMap{offsets: make(map[PartitionKey]int64)}
}

// Get returns the stored offset for p and whether it was present.
func (m OffsetMap) Get(p PartitionKey) (int64, bool) {
	if m.offsets == nil {
		return 0, false
	}
	off, ok := m.offsets[p]
	return off, ok
}

// Set records offset as the last acknowledged offset for p.
func (m *OffsetMap) Set(p PartitionKey, offset int64) {
	if m.offsets == nil {
		m.offsets = make(map[PartitionKey]int64)
	}
	m.offsets[p] = offset
}

// Partitions returns the set of partitions tracked by this map. The order
// is unspecified.
func (m OffsetMap) Partitions() []PartitionKey {
	keys := make([]PartitionKey, 0, len(m.offsets))
	for k := range m.offsets {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of partitions tracked.
func (m OffsetMap) Len() int {
	return len(m.offsets)
}

// Clone returns a deep copy of m.
func (m OffsetMap) Clone() OffsetMap {
	out := NewOffsetMap()
	for k, v := range m.offsets {
		out.offsets[k] = v
	}
	return out
}

// Merge returns a new OffsetMap that is the right-biased union of m and
// other: every partition in other overwrites the corresponding entry in m,
// partitions only in m are kept as-is.
func (m OffsetMap) Merge(other OffsetMap) OffsetMap {
	out := m.Clone()
	for k, v := range other.offsets {
		out.offsets[k] = v
	}
	return out
}

// Compare returns, for every partition present in both maps, the lag of m
// behind other (other[p] - m[p]). A partition missing from one side is
// treated as absent (not present in the result) since there is no
// well-defined lag without a starting point.
func (m OffsetMap) Compare(other OffsetMap) map[PartitionKey]int64 {
	lag := make(map[PartitionKey]int64)
	for k, v := range m.offsets {
		if ov, ok := other.offsets[k]; ok {
			lag[k] = ov - v
		}
	}
	return lag
}

// Equal reports whether m and other contain exactly the same partitions
// mapped to exactly the same offsets.
func (m OffsetMap) Equal(other OffsetMap) bool {
	if len(m.offsets) != len(other.offsets) {
		return false
	}
	for k, v := range m.offsets {
		if ov, ok := other.offsets[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
