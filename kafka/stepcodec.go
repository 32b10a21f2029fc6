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
	"encoding/json"
	"fmt"
)

// StepDecoder reconstructs a FilterStep from the blob its Encode produced.
// Step implementations register one of these (by kind) so a persisted blob
// rehydrates to an equal predicate after a restart, instead of relying on
// reflection/class-name lookup.
type StepDecoder func(blob []byte) (FilterStep, error)

var stepRegistry = make(map[string]StepDecoder)

// RegisterStepKind registers the decoder for a step kind. Intended to be
// called from an init() in the package defining the step type.
func RegisterStepKind(kind string, decode StepDecoder) {
	stepRegistry[kind] = decode
}

const negatedKind = "negated"

func init() {
	RegisterStepKind(negatedKind, func(blob []byte) (FilterStep, error) {
		inner, err := decodeEncodedStep(blob)
		if err != nil {
			return nil, err
		}
		return NegatedStep{Inner: inner}, nil
	})
}

type encodedStep struct {
	Kind string `json:"kind"`
	Blob []byte `json:"blob"`
}

func encodeStep(s FilterStep) (encodedStep, error) {
	if n, ok := s.(NegatedStep); ok {
		innerBlob, err := marshalEncodedStep(n.Inner)
		if err != nil {
			return encodedStep{}, err
		}
		return encodedStep{Kind: negatedKind, Blob: innerBlob}, nil
	}
	blob, err := s.Encode()
	if err != nil {
		return encodedStep{}, err
	}
	return encodedStep{Kind: s.Kind(), Blob: blob}, nil
}

func marshalEncodedStep(s FilterStep) ([]byte, error) {
	es, err := encodeStep(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(es)
}

func decodeEncodedStep(blob []byte) (FilterStep, error) {
	var es encodedStep
	if err := json.Unmarshal(blob, &es); err != nil {
		return nil, err
	}
	dec, ok := stepRegistry[es.Kind]
	if !ok {
		return nil, fmt.Errorf("kafka: no registered filter step kind %q", es.Kind)
	}
	return dec(es.Blob)
}

// EncodeSteps serializes an ordered step list into a single durable blob.
func EncodeSteps(steps []FilterStep) ([]byte, error) {
	encoded := make([]encodedStep, len(steps))
	for i, s := range steps {
		es, err := encodeStep(s)
		if err != nil {
			return nil, err
		}
		encoded[i] = es
	}
	return json.Marshal(encoded)
}

// DecodeSteps reconstructs an ordered step list from a blob produced by
// EncodeSteps.
func DecodeSteps(blob []byte) ([]FilterStep, error) {
	var encoded []encodedStep
	if err := json.Unmarshal(blob, &encoded); err != nil {
		return nil, err
	}
	steps := make([]FilterStep, len(encoded))
	for i, es := range encoded {
		dec, ok := stepRegistry[es.Kind]
		if !ok {
			return nil, fmt.Errorf("kafka: no registered filter step kind %q", es.Kind)
		}
		s, err := dec(es.Blob)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}
	return steps, nil
}
