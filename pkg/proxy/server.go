// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/crawley/ACLS-protocol-library/pkg/client"
	"github.com/crawley/ACLS-protocol-library/pkg/facility"
	"github.com/crawley/ACLS-protocol-library/pkg/handler"
	"github.com/crawley/ACLS-protocol-library/pkg/metrics"
	"github.com/crawley/ACLS-protocol-library/pkg/ratelimit"
	"github.com/crawley/ACLS-protocol-library/pkg/service"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the
// configured timeout and sessions had to be severed.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the proxy server configuration.
type Config struct {
	// Address is the listen address (host:port).
	Address string

	// TLSConfig is optional TLS configuration for the listener.
	TLSConfig *tls.Config

	// ShutdownTimeout is the maximum time to wait for active sessions to
	// drain during graceful shutdown. Remaining sessions are severed
	// afterwards. Defaults to 30s.
	ShutdownTimeout time.Duration

	// IdleTimeout bounds the wait for the next request on an open
	// session; an idle session is closed. Defaults to 5m.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing one response line. Defaults to 10s.
	WriteTimeout time.Duration

	// Limiter optionally rate-limits requests per facility.
	Limiter *ratelimit.Limiter

	// Metrics optionally instruments sessions and requests.
	Metrics *metrics.Metrics

	// Logger for server events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server accepts instrument-client connections, resolves each to a
// registered facility, and mediates their ACLS exchanges with the
// upstream server. It implements service.Worker so it can run under the
// supervision engine.
type Server struct {
	config   Config
	registry *facility.Registry
	client   *client.Client
	handler  handler.Handler
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

var _ service.Worker = (*Server)(nil)

// New creates a proxy server with the given configuration, facility
// registry, upstream client, and mediation handler.
func New(cfg Config, reg *facility.Registry, cl *client.Client, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Server{
		config:   cfg,
		registry: reg,
		client:   cl,
		handler:  h,
		logger:   cfg.Logger,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Run listens and serves until ctx is cancelled, then drains active
// sessions. A listener that fails while the context is still live is
// reported as a fault so the supervisor can decide on a relaunch.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.logger.Info("TLS enabled", slog.String("address", s.config.Address))
	}
	s.setListener(listener)
	defer s.setListener(nil)

	s.logger.Info("ACLS proxy started",
		slog.String("address", listener.Addr().String()),
		slog.String("server", s.registry.ServerAddress()))

	// Sessions get their own context so draining can outlive ctx and
	// force-close can sever what remains.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	acceptDone := make(chan struct{})
	var acceptErr error
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					acceptErr = err
				}
				return
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.trackConn(conn, true)
				defer s.trackConn(conn, false)
				if err := s.handleConn(connCtx, conn); err != nil {
					s.logger.Debug("session ended with error",
						slog.String("remote_addr", conn.RemoteAddr().String()),
						slog.String("error", err.Error()))
				}
			}()
		}
	}()

	select {
	case <-ctx.Done():
	case <-acceptDone:
		// The listener died on its own (or Unblock closed it).
	}

	s.logger.Info("closing listener", slog.String("address", s.config.Address))
	listener.Close()
	<-acceptDone

	drained := s.drain(connCancel)

	if ctx.Err() == nil {
		if acceptErr != nil {
			return fmt.Errorf("accept on %s: %w", s.config.Address, acceptErr)
		}
		return errors.New("listener closed unexpectedly")
	}
	if !drained {
		return ErrShutdownTimeout
	}
	return nil
}

// Addr returns the listener's address while the server runs, or nil.
// Useful when the configured address was host:0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Unblock releases a blocked accept by closing the listener.
func (s *Server) Unblock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
}

// drain waits for active sessions to finish, severing them after the
// shutdown timeout. Reports whether the drain completed gracefully.
func (s *Server) drain(connCancel context.CancelFunc) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all sessions closed gracefully")
		return true
	case <-time.After(s.config.ShutdownTimeout):
	}

	s.logger.Warn("shutdown timeout exceeded, severing remaining sessions")
	connCancel()
	s.closeConns()
	<-done
	return false
}

func (s *Server) setListener(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
