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

package filterchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/uber-go/kafka-spout/errors"
	"github.com/uber-go/kafka-spout/kafka"
)

type valueStep struct{ want string }

func (s valueStep) Match(m kafka.Message) bool {
	v, ok := m.Value.(string)
	return ok && v == s.want
}
func (s valueStep) Equal(other kafka.FilterStep) bool {
	o, ok := other.(valueStep)
	return ok && o.want == s.want
}
func (s valueStep) Encode() ([]byte, error) { return []byte(s.want), nil }
func (s valueStep) Kind() string            { return "test-value" }

func TestChainMatchIsLogicalOr(t *testing.T) {
	c := New()
	require.NoError(t, c.AddSteps("a", []kafka.FilterStep{valueStep{want: "2"}}))
	require.NoError(t, c.AddSteps("b", []kafka.FilterStep{valueStep{want: "3"}}))

	assert.True(t, c.Match(kafka.Message{Value: "2"}))
	assert.True(t, c.Match(kafka.Message{Value: "3"}))
	assert.False(t, c.Match(kafka.Message{Value: "4"}))
}

func TestAddStepsRejectsDuplicateIdentifier(t *testing.T) {
	c := New()
	require.NoError(t, c.AddSteps("a", []kafka.FilterStep{valueStep{want: "2"}}))
	err := c.AddSteps("a", []kafka.FilterStep{valueStep{want: "3"}})
	require.Error(t, err)
	assert.True(t, kerrors.Is(err, kerrors.KindPrecondition))
}

func TestRemoveStepsReturnsRemovedStepsAndClearsMatch(t *testing.T) {
	c := New()
	steps := []kafka.FilterStep{valueStep{want: "2"}}
	require.NoError(t, c.AddSteps("a", steps))

	got, ok := c.RemoveSteps("a")
	require.True(t, ok)
	assert.Equal(t, steps, got)
	assert.False(t, c.Match(kafka.Message{Value: "2"}))

	_, ok = c.RemoveSteps("a")
	assert.False(t, ok)
}

func TestFindByValue(t *testing.T) {
	c := New()
	steps := []kafka.FilterStep{valueStep{want: "2"}}
	require.NoError(t, c.AddSteps("a", steps))

	id, ok := c.FindByValue(steps)
	require.True(t, ok)
	assert.Equal(t, kafka.SidelineIdentifier("a"), id)

	_, ok = c.FindByValue([]kafka.FilterStep{valueStep{want: "9"}})
	assert.False(t, ok)
}
