// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the interface that links the proxy's session
// loop to site-specific mediation logic.
//
// # Architecture Overview
//
// The proxy itself only moves messages: it decodes a client request,
// resolves the facility, forwards the request to the ACLS server, and
// relays the answer. Everything a site wants to do around that flow
// (extra authorization, auditing, notification) lives behind the Handler
// interface.
//
// # Data Flow
//
//	Client → proxy (decode, resolve facility) → AuthRequest → ACLS server
//	ACLS server → OnResponse → proxy (encode) → Client
//
// # Handler Methods
//
// AuthRequest is called before a request is forwarded. Returning an error
// refuses the request: the proxy answers the client with the refusal
// matching the request type and the session continues. Because request
// values are pointers, AuthRequest may also rewrite fields in place,
// for example stamping a facility name onto requests from a known
// address.
//
// OnRequest and OnResponse are audit hooks around the upstream exchange,
// and OnDisconnect fires when the session ends. Errors from these are
// logged and otherwise ignored.
//
// # Context
//
// The Context struct carries session metadata across all calls: the
// session ID, the client address, the facility resolved for that address,
// and the user name once a login-carrying request has been seen.
//
// # Implementation
//
// Sites implement Handler to integrate the proxy with their own systems.
// NoopHandler is the pass-through implementation; examples/logging shows
// a Handler that audits every exchange.
package handler
