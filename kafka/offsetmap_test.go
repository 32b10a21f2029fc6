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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetMapGetSet(t *testing.T) {
	m := NewOffsetMap()
	p0 := PartitionKey{Topic: "t", Partition: 0}

	_, ok := m.Get(p0)
	require.False(t, ok)

	m.Set(p0, 5)
	off, ok := m.Get(p0)
	require.True(t, ok)
	assert.Equal(t, int64(5), off)
}

func TestOffsetMapMergeIsRightBiased(t *testing.T) {
	p0 := PartitionKey{Topic: "t", Partition: 0}
	p1 := PartitionKey{Topic: "t", Partition: 1}

	a := NewOffsetMap()
	a.Set(p0, 1)
	a.Set(p1, 2)

	b := NewOffsetMap()
	b.Set(p1, 20)

	merged := a.Merge(b)

	v0, _ := merged.Get(p0)
	v1, _ := merged.Get(p1)
	assert.Equal(t, int64(1), v0)
	assert.Equal(t, int64(20), v1)

	// Merge must not mutate the receiver.
	origV1, _ := a.Get(p1)
	assert.Equal(t, int64(2), origV1)
}

func TestOffsetMapCompare(t *testing.T) {
	p0 := PartitionKey{Topic: "t", Partition: 0}

	a := NewOffsetMap()
	a.Set(p0, 3)
	b := NewOffsetMap()
	b.Set(p0, 10)

	lag := a.Compare(b)
	assert.Equal(t, int64(7), lag[p0])
}

func TestOffsetMapEqual(t *testing.T) {
	p0 := PartitionKey{Topic: "t", Partition: 0}

	a := NewOffsetMap()
	a.Set(p0, 1)
	b := NewOffsetMap()
	b.Set(p0, 1)
	c := a.Clone()
	c.Set(p0, 2)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
