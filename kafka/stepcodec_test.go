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

func TestEncodeDecodeStepsRoundTrip(t *testing.T) {
	steps := []FilterStep{ValueEqualsStep{Want: "2"}, NegatedStep{Inner: ValueEqualsStep{Want: "3"}}}

	blob, err := EncodeSteps(steps)
	require.NoError(t, err)

	decoded, err := DecodeSteps(blob)
	require.NoError(t, err)

	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].Equal(steps[0]))
	assert.True(t, decoded[1].Equal(steps[1]))
}

func TestDecodeStepsUnknownKind(t *testing.T) {
	_, err := DecodeSteps([]byte(`[{"kind":"nope","blob":""}]`))
	assert.Error(t, err)
}
