// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/crawley/ACLS-protocol-library/pkg/facility"
	"github.com/crawley/ACLS-protocol-library/pkg/handler"
	"github.com/crawley/ACLS-protocol-library/pkg/message"
)

// refusedIPTag is the status line greeting for unregistered addresses.
// Anything other than the accepted tag reads as a refusal on the client
// side.
const refusedIPTag = "IP Refused"

// handleConn runs one client session: greet with the status line, then
// mediate requests until the client disconnects or the session dies.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	sessionID := uuid.New().String()
	remote := conn.RemoteAddr().String()

	fac := s.registry.ByAddress(remote)
	if fac == nil {
		s.logger.Warn("connection from unregistered address",
			slog.String("session_id", sessionID),
			slog.String("remote_addr", remote))
		s.countRefusal("unknown_facility")
		s.writeStatusLine(conn, refusedIPTag)
		return nil
	}

	if err := s.writeStatusLine(conn, message.AcceptedIPTag); err != nil {
		return err
	}

	hctx := &handler.Context{
		SessionID:  sessionID,
		RemoteAddr: remote,
		Facility:   fac.Name,
		FacilityID: fac.ID,
	}

	s.logger.Debug("session started",
		slog.String("session_id", sessionID),
		slog.String("remote_addr", remote),
		slog.String("facility", fac.Name))

	run := func() error { return s.session(ctx, conn, fac, hctx) }
	var err error
	if s.config.Metrics != nil {
		err = s.config.Metrics.ObserveSession(fac.Name, run)
	} else {
		err = run()
	}

	if herr := s.handler.OnDisconnect(context.Background(), hctx); herr != nil {
		s.logger.Error("disconnect handler error",
			slog.String("session_id", sessionID),
			slog.String("error", herr.Error()))
	}

	s.logger.Debug("session closed", slog.String("session_id", sessionID))
	return err
}

// session reads requests until the client goes away. One malformed
// request is answered with a command error and does not end the session.
func (s *Server) session(ctx context.Context, conn net.Conn, fac *facility.Facility, hctx *handler.Context) error {
	br := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout)); err != nil {
			return err
		}
		req, err := message.ReadRequest(br)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case message.KindOf(err) == message.KindMessageSyntax:
				s.countDecodeError(err)
				s.logger.Warn("malformed request",
					slog.String("session_id", hctx.SessionID),
					slog.String("error", err.Error()))
				if werr := s.writeResponse(conn, &message.CommandErrorResponse{}); werr != nil {
					return werr
				}
				continue
			case message.KindOf(err) == message.KindNoResponse:
				// Idle or empty line; the client has nothing to say.
				s.logger.Debug("session idle, closing",
					slog.String("session_id", hctx.SessionID))
				return nil
			default:
				return err
			}
		}

		if s.config.Metrics != nil {
			s.config.Metrics.RequestsTotal.WithLabelValues(req.Type().String()).Inc()
		}

		if s.config.Limiter != nil && !s.config.Limiter.Allow(fac.Name) {
			if s.config.Metrics != nil {
				s.config.Metrics.RateLimitedRequests.WithLabelValues(fac.Name).Inc()
			}
			s.logger.Warn("request rate limited",
				slog.String("session_id", hctx.SessionID),
				slog.String("facility", fac.Name))
			if err := s.writeResponse(conn, refusalFor(req)); err != nil {
				return err
			}
			continue
		}

		s.prepare(req, fac, hctx)

		if err := s.handler.AuthRequest(ctx, hctx, req); err != nil {
			s.countRefusal("auth_veto")
			s.logger.Info("request vetoed",
				slog.String("session_id", hctx.SessionID),
				slog.String("request", req.Type().String()),
				slog.String("error", err.Error()))
			if err := s.writeResponse(conn, refusalFor(req)); err != nil {
				return err
			}
			continue
		}
		if err := s.handler.OnRequest(ctx, hctx, req); err != nil {
			s.logger.Error("request handler error",
				slog.String("session_id", hctx.SessionID),
				slog.String("error", err.Error()))
		}

		resp := s.answerLocally(req, fac)
		if resp == nil {
			resp, err = s.client.Transact(ctx, req)
			if err != nil {
				// The client gets a refusal rather than a dead session;
				// the instrument retries on its own schedule.
				s.countRefusal("upstream_fault")
				s.logger.Warn("upstream transaction failed",
					slog.String("session_id", hctx.SessionID),
					slog.String("request", req.Type().String()),
					slog.String("error", err.Error()))
				if werr := s.writeResponse(conn, refusalFor(req)); werr != nil {
					return werr
				}
				continue
			}
		}

		if err := s.handler.OnResponse(ctx, hctx, req, resp); err != nil {
			s.logger.Error("response handler error",
				slog.String("session_id", hctx.SessionID),
				slog.String("error", err.Error()))
		}

		if s.config.Metrics != nil {
			s.config.Metrics.ResponsesTotal.WithLabelValues(resp.Type().String()).Inc()
		}
		if err := s.writeResponse(conn, resp); err != nil {
			return err
		}
	}
}

// prepare stamps session facts onto the request before mediation: the
// resolved facility name fills empty facility fields, and login-carrying
// requests update the session user.
func (s *Server) prepare(req message.Request, fac *facility.Facility, hctx *handler.Context) {
	switch r := req.(type) {
	case *message.LoginRequest:
		if r.Facility == "" {
			r.Facility = fac.Name
		}
		hctx.User = r.UserName
	case *message.LogoutRequest:
		if r.Facility == "" {
			r.Facility = fac.Name
		}
		hctx.User = r.UserName
	case *message.AccountRequest:
		if r.Facility == "" {
			r.Facility = fac.Name
		}
		hctx.User = r.UserName
	case *message.NotesRequest:
		if r.Facility == "" {
			r.Facility = fac.Name
		}
		hctx.User = r.UserName
	case *message.QueryRequest:
		if r.Facility == "" {
			r.Facility = fac.Name
		}
	}
}

// answerLocally serves the queries the upstream server cannot: site drive
// mappings live in the facility registry, not on the ACLS server.
func (s *Server) answerLocally(req message.Request, fac *facility.Facility) message.Response {
	if req.Type() != message.ReqNetDrive {
		return nil
	}
	if !fac.HasNetDrive() {
		return &message.NetDriveResponse{Kind: message.RespNetDriveNo}
	}
	return &message.NetDriveResponse{
		Kind:           message.RespNetDriveYes,
		Drive:          fac.Drive,
		Folder:         fac.Folder,
		AccessName:     fac.AccessName,
		AccessPassword: fac.AccessPassword,
	}
}

// refusalFor maps a request to the refusal answered when the proxy will
// not, or cannot, complete it.
func refusalFor(req message.Request) message.Response {
	switch req.Type() {
	case message.ReqLogin:
		return &message.RefusedResponse{Kind: message.RespLoginRefused}
	case message.ReqLogout:
		return &message.RefusedResponse{Kind: message.RespLogoutRefused}
	case message.ReqAccount:
		return &message.RefusedResponse{Kind: message.RespAccountRefused}
	case message.ReqNotes:
		return &message.RefusedResponse{Kind: message.RespNotesRefused}
	case message.ReqFacilityName:
		return &message.RefusedResponse{Kind: message.RespFacilityRefused}
	case message.ReqVirtualLogin:
		return &message.RefusedResponse{Kind: message.RespVirtualLoginRefused}
	case message.ReqVirtualLogout:
		return &message.RefusedResponse{Kind: message.RespVirtualLogoutRefused}
	case message.ReqVirtualAccount:
		return &message.RefusedResponse{Kind: message.RespVirtualAccountRefused}
	case message.ReqNewVirtualLogin:
		return &message.RefusedResponse{Kind: message.RespNewVirtualLoginRefused}
	case message.ReqNewVirtualAccount:
		return &message.RefusedResponse{Kind: message.RespNewVirtualAccountRefused}
	case message.ReqStaffLogin:
		return &message.RefusedResponse{Kind: message.RespStaffLoginRefused}
	case message.ReqUseProject:
		return &message.YesNoResponse{Kind: message.RespProjectNo}
	case message.ReqUseTimer:
		return &message.YesNoResponse{Kind: message.RespTimerNo}
	case message.ReqUseFullScreen:
		return &message.YesNoResponse{Kind: message.RespFullScreenNo}
	case message.ReqUseVirtual:
		return &message.YesNoResponse{Kind: message.RespUseVirtual, Value: false}
	case message.ReqSystemPassword:
		return &message.SystemPasswordResponse{Kind: message.RespSystemPasswordNo}
	case message.ReqNetDrive:
		return &message.NetDriveResponse{Kind: message.RespNetDriveNo}
	default:
		return &message.CommandErrorResponse{}
	}
}

// writeStatusLine writes the connection greeting.
func (s *Server) writeStatusLine(conn net.Conn, tag string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(conn, tag+"\n")
	return err
}

// writeResponse encodes one response line to the client.
func (s *Server) writeResponse(conn net.Conn, resp message.Response) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	return message.WriteResponse(conn, resp)
}

func (s *Server) countRefusal(reason string) {
	if s.config.Metrics != nil {
		s.config.Metrics.RefusedRequests.WithLabelValues(reason).Inc()
	}
}

func (s *Server) countDecodeError(err error) {
	if s.config.Metrics != nil {
		s.config.Metrics.DecodeErrors.WithLabelValues(message.KindOf(err).String()).Inc()
	}
}
