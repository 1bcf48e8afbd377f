// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol fault. Callers branch on the kind rather than
// on concrete error types.
type Kind int

const (
	// KindCommunications is a transport-level I/O failure while reading or
	// writing a message.
	KindCommunications Kind = iota + 1

	// KindProtocol is a malformed exchange beyond a single message, or a
	// timeout/I/O failure after a status line was already accepted.
	KindProtocol

	// KindMessageSyntax means one message's token sequence violates the
	// grammar. Scoped to the single decode call.
	KindMessageSyntax

	// KindNoResponse means the server produced nothing before the deadline.
	KindNoResponse

	// KindServerStatus is an explicit rejection at the status-line stage.
	KindServerStatus
)

func (k Kind) String() string {
	switch k {
	case KindCommunications:
		return "communications"
	case KindProtocol:
		return "protocol"
	case KindMessageSyntax:
		return "message_syntax"
	case KindNoResponse:
		return "no_response"
	case KindServerStatus:
		return "server_status"
	default:
		return "unknown"
	}
}

// Error is a classified protocol fault.
type Error struct {
	Kind Kind

	// StatusLine is the literal rejected line for a server-status fault.
	StatusLine string

	// Msg describes the expectation that was violated.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the protocol fault kind carried by err, or zero when err is
// not a protocol fault.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusLineOf returns the rejected status line carried by err, or "" when
// err is not a server-status fault.
func StatusLineOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindServerStatus {
		return e.StatusLine
	}
	return ""
}

func commsError(msg string, err error) error {
	return &Error{Kind: KindCommunications, Msg: msg, Err: err}
}

func protocolError(msg string, err error) error {
	return &Error{Kind: KindProtocol, Msg: msg, Err: err}
}

func syntaxErrorf(format string, args ...any) error {
	return &Error{Kind: KindMessageSyntax, Msg: fmt.Sprintf(format, args...)}
}

func noResponseError(msg string, err error) error {
	return &Error{Kind: KindNoResponse, Msg: msg, Err: err}
}

func statusError(line string) error {
	return &Error{Kind: KindServerStatus, StatusLine: line, Msg: fmt.Sprintf("server rejected the connection: %q", line)}
}
