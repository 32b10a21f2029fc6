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

// Package errors defines the typed error kinds the core uses to distinguish
// caller misuse from configuration problems from transient failures, per
// the error handling design: Precondition and Configuration are fatal and
// never retried; Deserialization and Broker failures are recovered locally;
// Persistence failures are retried with bounded backoff before they
// surface.
package errors

import (
	stderrors "errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error for callers that want to branch on it without
// string matching.
type Kind int

const (
	// KindPrecondition marks API misuse: an operation invoked before open,
	// a double open, a nil identifier. Fatal to the caller, never retried.
	KindPrecondition Kind = iota
	// KindConfiguration marks a missing or ill-typed config key at open
	// time. Fatal; surfaced to the host; no partial state is left behind.
	KindConfiguration
	// KindDeserialization marks a single record that failed to decode.
	KindDeserialization
	// KindPersistence marks a transient durable-store error.
	KindPersistence
	// KindBroker marks a transient broker-client error.
	KindBroker
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindConfiguration:
		return "configuration"
	case KindDeserialization:
		return "deserialization"
	case KindPersistence:
		return "persistence"
	case KindBroker:
		return "broker"
	default:
		return "unknown"
	}
}

// Error is a typed, wrappable error. Unwrap returns the underlying cause so
// callers can still errors.Is/errors.As through it.
type Error struct {
	Kind  Kind
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a Kind error with a message, no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, cause: stderrors.New(msg)}
}

// Newf creates a Kind error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: pkgerrors.Wrap(err, msg)}
}

// Wrapf attaches a Kind to an existing error with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: pkgerrors.Wrapf(err, format, args...)}
}

// Is reports whether err (or anything it wraps) is a *Error of the given
// Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
