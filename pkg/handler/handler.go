// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"

	"github.com/crawley/ACLS-protocol-library/pkg/message"
)

// Context carries session metadata across handler calls. The proxy fills
// it in as the session progresses.
type Context struct {
	// SessionID is a unique identifier for this client session.
	SessionID string

	// RemoteAddr is the client's network address.
	RemoteAddr string

	// Facility is the name of the facility resolved from RemoteAddr.
	Facility string

	// FacilityID is the resolved facility's identifier, when it has one.
	FacilityID string

	// User is the user name from the most recent login-carrying request
	// seen on this session. Empty until one arrives.
	User string
}

// Handler defines authorization and notification callbacks around every
// exchange the proxy mediates.
//
// AuthRequest runs before a request is forwarded upstream and may veto it;
// a veto is answered with the matching refusal, and the session continues.
// Request values are pointers, so AuthRequest may also rewrite fields in
// place before forwarding.
//
// The On* methods are notifications. Errors from them are logged but do
// not affect the exchange.
type Handler interface {
	// AuthRequest authorizes a client request before it is forwarded.
	// Return an error to refuse the request.
	AuthRequest(ctx context.Context, hctx *Context, req message.Request) error

	// OnRequest is called after a request has been authorized, just
	// before it is forwarded upstream.
	OnRequest(ctx context.Context, hctx *Context, req message.Request) error

	// OnResponse is called with the server's answer before it is relayed
	// back to the client.
	OnResponse(ctx context.Context, hctx *Context, req message.Request, resp message.Response) error

	// OnDisconnect is called when the client session ends, gracefully or
	// not.
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler allows every request and ignores every notification. Useful
// for testing or when no mediation logic is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthRequest(ctx context.Context, hctx *Context, req message.Request) error {
	return nil
}

func (h *NoopHandler) OnRequest(ctx context.Context, hctx *Context, req message.Request) error {
	return nil
}

func (h *NoopHandler) OnResponse(ctx context.Context, hctx *Context, req message.Request, resp message.Response) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
