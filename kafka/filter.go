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

// FilterStep is a deterministic boolean predicate over a Message. A step
// must be value-equal across process restarts: a blob persisted by Encode
// and later rehydrated by a step registry must produce a step that Equal()s
// the original, so FilterChain.FindByValue, which compares steps with
// Equal, can match them back up.
type FilterStep interface {
	// Match returns whether this step diverts m.
	Match(m Message) bool
	// Equal reports whether other is the same predicate (by value, not by
	// identity): same kind, same parameters.
	Equal(other FilterStep) bool
	// Encode returns the durable blob form of this step's parameters (not
	// including its kind -- see RegisterStepKind).
	Encode() ([]byte, error)
	// Kind names the registered decoder that can rehydrate this step's
	// Encode() output.
	Kind() string
}

// NegatedStep wraps a FilterStep and inverts its Match result. It is used
// to replay exactly the range a sideline diverted, applying the opposite
// predicate so the replay and the firehose partition the diverted range
// without overlap.
type NegatedStep struct {
	Inner FilterStep
}

// Match returns the negation of the wrapped step's Match.
func (n NegatedStep) Match(m Message) bool {
	return !n.Inner.Match(m)
}

// Equal reports whether other is also a NegatedStep wrapping an equal step.
func (n NegatedStep) Equal(other FilterStep) bool {
	o, ok := other.(NegatedStep)
	if !ok {
		return false
	}
	return n.Inner.Equal(o.Inner)
}

// Encode delegates to the wrapped step; the persistence layer special-cases
// NegatedStep (see EncodeSteps) to also record that a negation applies, so
// this method alone is never sufficient to rehydrate a NegatedStep.
func (n NegatedStep) Encode() ([]byte, error) {
	return n.Inner.Encode()
}

// Kind identifies NegatedStep for the step registry.
func (n NegatedStep) Kind() string {
	return negatedKind
}

// Negate wraps steps in NegatedStep, in order.
func Negate(steps []FilterStep) []FilterStep {
	out := make([]FilterStep, len(steps))
	for i, s := range steps {
		out[i] = NegatedStep{Inner: s}
	}
	return out
}

// StepsEqual reports whether two ordered step lists are value-equal,
// element by element. Used by FilterChain.FindByValue to look up a
// sideline by its client-provided predicate list.
func StepsEqual(a, b []FilterStep) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
