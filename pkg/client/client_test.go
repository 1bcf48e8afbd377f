// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/crawley/ACLS-protocol-library/pkg/breaker"
	"github.com/crawley/ACLS-protocol-library/pkg/message"
)

// startServer runs a scripted ACLS server; every accepted connection is
// handled by script on its own goroutine.
func startServer(t *testing.T, script func(conn net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				script(c)
			}(conn)
		}
	}()

	return listener.Addr().String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Transact(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			t.Errorf("Failed to read request: %v", err)
			return
		}
		if line != "1:alice|secret|?LabX|\n" {
			t.Errorf("Unexpected request line %q", line)
		}
		io.WriteString(conn, "IP Accepted\n11:alice|CMM|]LabX;|&Valid|\n")
	})

	c := New(Config{Address: addr, Logger: quietLogger()})
	resp, err := c.Transact(context.Background(), &message.LoginRequest{
		Kind:     message.ReqLogin,
		UserName: "alice",
		Password: "secret",
		Facility: "LabX",
	})
	if err != nil {
		t.Fatalf("Transact() error = %v", err)
	}

	login, ok := resp.(*message.LoginResponse)
	if !ok {
		t.Fatalf("Expected a login response, got %T", resp)
	}
	if login.UserName != "alice" || login.OrgName != "CMM" {
		t.Errorf("Unexpected login response %+v", login)
	}
	if len(login.Accounts) != 1 || login.Accounts[0] != "LabX" {
		t.Errorf("Expected account list [LabX], got %v", login.Accounts)
	}
}

func TestClient_StatusLineRefusal(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		bufio.NewReader(conn).ReadString('\n')
		io.WriteString(conn, "IP Refused\n")
	})

	c := New(Config{Address: addr, Logger: quietLogger()})
	_, err := c.Transact(context.Background(), &message.QueryRequest{Kind: message.ReqFacilityName})
	if got := message.KindOf(err); got != message.KindServerStatus {
		t.Fatalf("Expected a server-status fault, got kind %v (%v)", got, err)
	}
	if got := message.StatusLineOf(err); got != "IP Refused" {
		t.Errorf("Expected status line to be preserved, got %q", got)
	}
	if IsTransportFault(err) {
		t.Error("Expected a refusal not to count as a transport fault")
	}
}

func TestClient_NoResponse(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		// Swallow the request and go silent.
		bufio.NewReader(conn).ReadString('\n')
		time.Sleep(500 * time.Millisecond)
	})

	c := New(Config{Address: addr, Timeout: 50 * time.Millisecond, Logger: quietLogger()})
	_, err := c.Transact(context.Background(), &message.QueryRequest{Kind: message.ReqFacilityCount})
	if got := message.KindOf(err); got != message.KindNoResponse {
		t.Fatalf("Expected a no-response fault, got kind %v (%v)", got, err)
	}
	if !IsTransportFault(err) {
		t.Error("Expected a silent server to count as a transport fault")
	}
}

func TestClient_DialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	c := New(Config{Address: addr, Logger: quietLogger()})
	_, err = c.Transact(context.Background(), &message.QueryRequest{Kind: message.ReqFacilityName})
	if got := message.KindOf(err); got != message.KindCommunications {
		t.Fatalf("Expected a communications fault, got kind %v (%v)", got, err)
	}
	if !IsTransportFault(err) {
		t.Error("Expected a dial failure to count as a transport fault")
	}
}

func TestClient_BreakerFailsFast(t *testing.T) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	b := breaker.New(breaker.Config{MaxFailures: 1, IsFailure: IsTransportFault})
	c := New(Config{Address: addr, Breaker: b, Logger: quietLogger()})

	if _, err := c.Transact(context.Background(), &message.QueryRequest{Kind: message.ReqFacilityName}); err == nil {
		t.Fatal("Expected the first transaction to fail")
	}
	_, err = c.Transact(context.Background(), &message.QueryRequest{Kind: message.ReqFacilityName})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("Expected ErrOpen once the breaker tripped, got %v", err)
	}
}

func TestClient_RefusalsDoNotTripBreaker(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		bufio.NewReader(conn).ReadString('\n')
		io.WriteString(conn, "IP Refused\n")
	})

	b := breaker.New(breaker.Config{MaxFailures: 1, IsFailure: IsTransportFault})
	c := New(Config{Address: addr, Breaker: b, Logger: quietLogger()})

	for i := 0; i < 3; i++ {
		_, err := c.Transact(context.Background(), &message.QueryRequest{Kind: message.ReqFacilityName})
		if got := message.KindOf(err); got != message.KindServerStatus {
			t.Fatalf("Transaction %d: expected a server-status fault, got %v", i, err)
		}
	}
	if got := b.State(); got != breaker.StateClosed {
		t.Errorf("Expected the breaker to stay %v, got %v", breaker.StateClosed, got)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		bufio.NewReader(conn).ReadString('\n')
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Config{Address: addr, Logger: quietLogger()})
	if _, err := c.Transact(ctx, &message.QueryRequest{Kind: message.ReqFacilityName}); err == nil {
		t.Fatal("Expected a cancelled context to fail the transaction")
	}
}

func TestIsTransportFault(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"communications", &message.Error{Kind: message.KindCommunications, Msg: "x"}, true},
		{"no response", &message.Error{Kind: message.KindNoResponse, Msg: "x"}, true},
		{"server status", &message.Error{Kind: message.KindServerStatus, StatusLine: "IP Refused"}, false},
		{"message syntax", &message.Error{Kind: message.KindMessageSyntax, Msg: "x"}, false},
		{"plain error", errors.New("x"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransportFault(tc.err); got != tc.want {
				t.Errorf("IsTransportFault() = %v, expected %v", got, tc.want)
			}
		})
	}
}
