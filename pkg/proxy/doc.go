// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the ACLS proxy front-end: a TCP server that
// sits between instrument clients and the central ACLS server.
//
// # Architecture Overview
//
//	Instrument client → Server (session loop) → handler hooks → client.Transact → ACLS server
//
// Each accepted connection becomes a session. The remote address is
// resolved against the facility registry; connections from unregistered
// addresses are greeted with a refusal status line and dropped, everyone
// else gets the accepted tag and a request loop.
//
// # Session Loop
//
// Within a session the proxy repeatedly decodes one request line, applies
// per-facility rate limits, lets the mediation Handler authorize or veto,
// fills empty facility fields with the resolved facility, and forwards
// the request upstream on a fresh connection. The typed response is
// relayed back through the encoder. Net-drive queries are answered
// locally from the registry's drive mapping, since the upstream server
// knows nothing about site drive layouts.
//
// A malformed request line is answered with a command error and the
// session continues; only transport failures, idleness, or client
// disconnect end it. When the proxy refuses a request itself (rate
// limit, handler veto, upstream fault) it answers the refusal variant
// matching the request type, so instrument clients see ordinary protocol
// traffic rather than dead air.
//
// # Supervision
//
// Server implements service.Worker: Run listens until the context is
// cancelled and then drains sessions within the shutdown timeout, and
// Unblock closes the listener to release a blocked accept. cmd runs it
// under service.MonitoredService, so a crashed listener is relaunched
// per the restart policy.
package proxy
