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

const valueEqualsKind = "value-equals"

// ValueEqualsStep matches a Message whose Value, rendered with fmt.Sprint,
// equals Want. It is the simplest useful FilterStep and is what an
// operator-facing trigger builds from a raw string predicate (e.g. "v ==
// '2'" in an ad-hoc query language lowers to ValueEqualsStep{Want: "2"}).
type ValueEqualsStep struct {
	Want string
}

// Match implements FilterStep.
func (s ValueEqualsStep) Match(m Message) bool {
	return fmt.Sprint(m.Value) == s.Want
}

// Equal implements FilterStep.
func (s ValueEqualsStep) Equal(other FilterStep) bool {
	o, ok := other.(ValueEqualsStep)
	return ok && o.Want == s.Want
}

// Encode implements FilterStep.
func (s ValueEqualsStep) Encode() ([]byte, error) {
	return []byte(s.Want), nil
}

// Kind implements FilterStep.
func (s ValueEqualsStep) Kind() string {
	return valueEqualsKind
}

func init() {
	RegisterStepKind(valueEqualsKind, func(blob []byte) (FilterStep, error) {
		return ValueEqualsStep{Want: string(blob)}, nil
	})
}
