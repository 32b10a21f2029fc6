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
)

// equalsStep is a small test-only FilterStep: it matches when the Message's
// Value equals a fixed string. The production step is ValueEqualsStep in
// valuestep.go, registered through RegisterStepKind; this is the step the spec's
// worked examples (section 8) use, expressed minimally.
type equalsStep struct {
	want string
}

func (s equalsStep) Match(m Message) bool {
	v, ok := m.Value.(string)
	return ok && v == s.want
}

func (s equalsStep) Equal(other FilterStep) bool {
	o, ok := other.(equalsStep)
	return ok && o.want == s.want
}

func (s equalsStep) Encode() ([]byte, error) {
	return []byte(s.want), nil
}

func (s equalsStep) Kind() string {
	return "test-equals"
}

func TestNegatedStepInvertsMatch(t *testing.T) {
	step := equalsStep{want: "2"}
	neg := NegatedStep{Inner: step}

	match := Message{Value: "2"}
	other := Message{Value: "3"}

	assert.True(t, step.Match(match))
	assert.False(t, neg.Match(match))
	assert.False(t, step.Match(other))
	assert.True(t, neg.Match(other))
}

func TestStepsEqual(t *testing.T) {
	a := []FilterStep{equalsStep{want: "2"}}
	b := []FilterStep{equalsStep{want: "2"}}
	c := []FilterStep{equalsStep{want: "3"}}

	assert.True(t, StepsEqual(a, b))
	assert.False(t, StepsEqual(a, c))
	assert.False(t, StepsEqual(a, nil))
}

func TestNegateWrapsEachStep(t *testing.T) {
	steps := []FilterStep{equalsStep{want: "2"}, equalsStep{want: "3"}}
	negated := Negate(steps)

	require := assert.New(t)
	require.Len(negated, 2)
	for i, s := range negated {
		_, ok := s.(NegatedStep)
		require.True(ok)
		require.True(s.Equal(NegatedStep{Inner: steps[i]}))
	}
}
