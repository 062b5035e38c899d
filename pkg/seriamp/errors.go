// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/seriamp/pkg/transport"
)

// Kind classifies an Error
type Kind int

const (
	KindIO Kind = iota
	KindNoDevice
	KindBadDevice
	KindTimeout
	KindUnexpectedResponse
	KindHandshakeFailure
	KindChecksumMismatch
	KindUnhandledResponse
	KindInvalidCommand
	KindNotApplicable
	KindArgument
)

var kindNames = map[Kind]string{
	KindIO:                 "io",
	KindNoDevice:           "no_device",
	KindBadDevice:          "bad_device",
	KindTimeout:            "timeout",
	KindUnexpectedResponse: "unexpected_response",
	KindHandshakeFailure:   "handshake_failure",
	KindChecksumMismatch:   "checksum_mismatch",
	KindUnhandledResponse:  "unhandled_response",
	KindInvalidCommand:     "invalid_command",
	KindNotApplicable:      "not_applicable",
	KindArgument:           "argument",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// isUnexpected reports whether k is a refinement of KindUnexpectedResponse
func (k Kind) isUnexpected() bool {
	switch k {
	case KindUnexpectedResponse, KindHandshakeFailure, KindChecksumMismatch, KindUnhandledResponse:
		return true
	}
	return false
}

// Error is the error type returned by device clients
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind, so errors.Is(err, ErrTimeout) works for any timeout.
// HandshakeFailure, ChecksumMismatch and UnhandledResponse also match
// ErrUnexpectedResponse.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindUnexpectedResponse && e.Kind.isUnexpected()
}

// Sentinels for errors.Is
var (
	ErrIO                 = &Error{Kind: KindIO, Message: "I/O error"}
	ErrNoDevice           = &Error{Kind: KindNoDevice, Message: "no device"}
	ErrBadDevice          = &Error{Kind: KindBadDevice, Message: "bad device"}
	ErrTimeout            = &Error{Kind: KindTimeout, Message: "communication timeout"}
	ErrUnexpectedResponse = &Error{Kind: KindUnexpectedResponse, Message: "unexpected response"}
	ErrHandshakeFailure   = &Error{Kind: KindHandshakeFailure, Message: "handshake failure"}
	ErrChecksumMismatch   = &Error{Kind: KindChecksumMismatch, Message: "checksum mismatch"}
	ErrUnhandledResponse  = &Error{Kind: KindUnhandledResponse, Message: "unhandled response"}
	ErrInvalidCommand     = &Error{Kind: KindInvalidCommand, Message: "invalid command"}
	ErrNotApplicable      = &Error{Kind: KindNotApplicable, Message: "not applicable"}
	ErrArgument           = &Error{Kind: KindArgument, Message: "invalid argument"}
)

// Errorf builds an Error of the given kind. A %w verb sets the wrapped error.
func Errorf(kind Kind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{
		Kind:    kind,
		Message: err.Error(),
		Err:     errors.Unwrap(err),
	}
}

// KindOf returns the kind of err, if err is or wraps an *Error
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether a dispatch failing with err may be retried.
// Checksum and handshake failures are treated as line noise.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindIO, KindTimeout, KindChecksumMismatch, KindHandshakeFailure, KindBadDevice:
		return true
	}
	return false
}

// IsNoDevice reports whether err means no device could be found or opened
func IsNoDevice(err error) bool {
	return errors.Is(err, ErrNoDevice)
}

// IsTimeout reports whether err is a communication timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNotApplicable reports whether the device refused the command in its current state
func IsNotApplicable(err error) bool {
	return errors.Is(err, ErrNotApplicable)
}

// fromTransport classifies errors returned by a Transport
func fromTransport(op, path string, err error) error {
	switch {
	case errors.Is(err, transport.ErrNoDevice):
		return Errorf(KindNoDevice, "%s %s: %w", op, path, err)
	case errors.Is(err, transport.ErrBadDevice):
		return Errorf(KindBadDevice, "%s %s: %w", op, path, err)
	default:
		return Errorf(KindIO, "%s %s: %w", op, path, err)
	}
}
