// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
)

// Class groups error kinds by how the connection reacts to them.
type Class string

const (
	ClassAuth      Class = "auth"
	ClassProtocol  Class = "protocol"
	ClassResource  Class = "resource"
	ClassTransport Class = "transport"
)

// Kind is the stable wire code for one failure mode.
type Kind string

const (
	KindInvalidToken         Kind = "invalid"
	KindTokenAlreadyUsed     Kind = "already_used"
	KindTokenExpired         Kind = "expired"
	KindAlreadyAuthenticated Kind = "already_authenticated"

	KindUnexpectedMessage Kind = "unexpected_message"
	KindBadTransition     Kind = "bad_transition"

	KindMonitorGone             Kind = "monitor_gone"
	KindBufferDimensionMismatch Kind = "buffer_dimension_mismatch"
	KindNoBuffers               Kind = "no_buffers"

	KindDisconnected Kind = "disconnected"
	KindIOFailure    Kind = "io_failure"
)

var kindClass = map[Kind]Class{
	KindInvalidToken:         ClassAuth,
	KindTokenAlreadyUsed:     ClassAuth,
	KindTokenExpired:         ClassAuth,
	KindAlreadyAuthenticated: ClassAuth,

	KindUnexpectedMessage: ClassProtocol,
	KindBadTransition:     ClassProtocol,

	KindMonitorGone:             ClassResource,
	KindBufferDimensionMismatch: ClassResource,
	KindNoBuffers:               ClassResource,

	KindDisconnected: ClassTransport,
	KindIOFailure:    ClassTransport,
}

// Class returns the class a kind belongs to. Unknown kinds (for
// example, a code received from a newer peer) are reported as
// protocol errors.
func (k Kind) Class() Class {
	if class, ok := kindClass[k]; ok {
		return class
	}
	return ClassProtocol
}

// Error is a classified failure. Detail is free-form context for logs
// and the human-readable half of wire error payloads.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s error: %s", e.Kind.Class(), e.Kind)
	}
	return fmt.Sprintf("%s error: %s: %s", e.Kind.Class(), e.Kind, e.Detail)
}

// Class returns the error's class.
func (e *Error) Class() Class { return e.Kind.Class() }

// Is matches any *Error with the same Kind, so errors built by New
// match the package sentinels regardless of Detail.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
	ErrTokenAlreadyUsed     = &Error{Kind: KindTokenAlreadyUsed}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrAlreadyAuthenticated = &Error{Kind: KindAlreadyAuthenticated}

	ErrUnexpectedMessage = &Error{Kind: KindUnexpectedMessage}
	ErrBadTransition     = &Error{Kind: KindBadTransition}

	ErrMonitorGone             = &Error{Kind: KindMonitorGone}
	ErrBufferDimensionMismatch = &Error{Kind: KindBufferDimensionMismatch}
	ErrNoBuffers               = &Error{Kind: KindNoBuffers}

	ErrDisconnected = &Error{Kind: KindDisconnected}
	ErrIOFailure    = &Error{Kind: KindIOFailure}
)

// New returns an error of the given kind with formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// From extracts the classified error from err's chain. Errors that
// carry no classification are reported as transport I/O failures,
// since unclassified errors reaching a connection boundary come from
// the socket.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Kind: KindIOFailure, Detail: err.Error()}
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// Fatal reports whether err must close the connection it occurred on.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch From(err).Class() {
	case ClassAuth, ClassProtocol, ClassTransport:
		return true
	default:
		return false
	}
}
