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

import "github.com/google/uuid"

// SidelineIdentifier is opaque, globally unique, and stable across
// restarts: it is generated once when a sideline starts and persisted
// alongside every request tied to it.
type SidelineIdentifier string

// NewSidelineIdentifier generates a fresh identifier.
func NewSidelineIdentifier() SidelineIdentifier {
	return SidelineIdentifier(uuid.New().String())
}

// PayloadType distinguishes a sideline-start request from a sideline-stop
// request in persisted form.
type PayloadType int

const (
	// PayloadStart marks the moment a filter was attached to the firehose.
	PayloadStart PayloadType = iota
	// PayloadStop marks the moment a filter was detached and a bounded
	// replay source was (or is about to be) spawned for it.
	PayloadStop
)

// String implements fmt.Stringer for log lines.
func (t PayloadType) String() string {
	switch t {
	case PayloadStart:
		return "START"
	case PayloadStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// SidelineRequest is what a trigger hands to the Sideline Controller: the
// ordered predicate list that defines the filter to attach (on start) or
// to look up and detach (on stop).
type SidelineRequest struct {
	Steps []FilterStep
}

// SidelinePayload is the durable record of one sideline request, keyed by
// identifier. StartingState is always populated; EndingState is populated
// only once the sideline has been stopped.
type SidelinePayload struct {
	Type          PayloadType
	Identifier    SidelineIdentifier
	Steps         []FilterStep
	StartingState OffsetMap
	EndingState   OffsetMap
	HasEnding     bool
}
