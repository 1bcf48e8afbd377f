// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package client implements the client side of the ACLS protocol. The
// server handles one request per connection, so every transaction dials a
// fresh connection, sends a single request line, reads the status line and
// response, and disconnects.
package client

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/crawley/ACLS-protocol-library/pkg/breaker"
	"github.com/crawley/ACLS-protocol-library/pkg/message"
	"github.com/crawley/ACLS-protocol-library/pkg/metrics"
)

// Config holds client configuration.
type Config struct {
	// Address is the ACLS server host:port.
	Address string

	// DialTimeout bounds connection establishment. Defaults to 5s.
	DialTimeout time.Duration

	// Timeout bounds one whole transaction, from the first write to the
	// last byte of the response. Defaults to 10s.
	Timeout time.Duration

	// Breaker optionally guards transactions. When the breaker is open,
	// Transact fails fast with breaker.ErrOpen. Wire IsTransportFault as
	// the breaker's failure filter so refusals don't trip it.
	Breaker *breaker.Breaker

	// Metrics optionally records transaction outcomes and durations.
	Metrics *metrics.Metrics

	// Logger is used for transaction logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is an ACLS server client. It is safe for concurrent use; every
// transaction runs on its own connection.
type Client struct {
	config Config
	logger *slog.Logger
}

// New creates a client, filling in defaults for zero config fields.
func New(config Config) *Client {
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		logger: config.Logger,
	}
}

// Transact performs one request/response exchange with the ACLS server on
// a fresh connection. Faults carry a message fault kind; use
// message.KindOf to classify them.
func (c *Client) Transact(ctx context.Context, req message.Request) (message.Response, error) {
	var resp message.Response
	do := func() error {
		var err error
		resp, err = c.exchange(ctx, req)
		return err
	}

	start := time.Now()
	var err error
	if c.config.Breaker != nil {
		err = c.config.Breaker.Call(do)
	} else {
		err = do()
	}
	duration := time.Since(start)

	if c.config.Metrics != nil {
		c.config.Metrics.TransactionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		c.config.Metrics.TransactionDuration.Observe(duration.Seconds())
	}

	if err != nil {
		c.logger.Warn("ACLS transaction failed",
			slog.String("request", req.Type().String()),
			slog.String("error", err.Error()))
		return nil, err
	}
	c.logger.Debug("ACLS transaction",
		slog.String("request", req.Type().String()),
		slog.String("response", resp.Type().String()),
		slog.Duration("duration", duration))
	return resp, nil
}

// exchange runs the dial/write/read cycle for a single transaction.
func (c *Client) exchange(ctx context.Context, req message.Request) (message.Response, error) {
	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return nil, &message.Error{
			Kind: message.KindCommunications,
			Msg:  "dial ACLS server " + c.config.Address,
			Err:  err,
		}
	}
	defer conn.Close()

	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &message.Error{
			Kind: message.KindCommunications,
			Msg:  "set connection deadline",
			Err:  err,
		}
	}

	if err := message.WriteRequest(conn, req); err != nil {
		return nil, err
	}
	return message.ReadResponseWithStatusLine(bufio.NewReader(conn))
}

// IsTransportFault reports whether err means the server could not be
// reached or produced nothing, as opposed to answering unfavourably.
// Intended as the breaker's failure filter.
func IsTransportFault(err error) bool {
	switch message.KindOf(err) {
	case message.KindCommunications, message.KindNoResponse:
		return true
	default:
		return false
	}
}

// outcomeLabel maps a transaction error to its metric label.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, breaker.ErrOpen) {
		return "breaker_open"
	}
	if kind := message.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "error"
}
