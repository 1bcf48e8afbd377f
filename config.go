// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package acls holds the environment configuration for the ACLS proxy
// daemon. The protocol codec, the supervision engine and the proxy
// front-end live under pkg/.
package acls

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration, populated from the environment.
// Every variable is read under the prefix the caller passes to NewConfig,
// conventionally "ACLS_".
type Config struct {
	// ListenAddress is the host:port the proxy accepts instrument
	// connections on.
	ListenAddress string `env:"LISTEN_ADDRESS" envDefault:":1024"`

	// FacilityFile is the path of the facility registry JSON file. The
	// registry also names the upstream ACLS server.
	FacilityFile string `env:"FACILITY_FILE" envDefault:"facilities.json"`

	// Observability.
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`

	// TLS for the client-facing listener. Both must be set to enable it;
	// instrument-side deployments usually run in the clear on a closed
	// network.
	CertFile string `env:"SERVER_CERT"`
	KeyFile  string `env:"SERVER_KEY"`

	// Upstream transaction timeouts.
	DialTimeout   time.Duration `env:"DIAL_TIMEOUT"   envDefault:"5s"`
	ServerTimeout time.Duration `env:"SERVER_TIMEOUT" envDefault:"10s"`

	// Client session timeouts.
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     envDefault:"5m"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Circuit breaker guarding upstream transactions.
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`

	// Per-facility request rate limiting.
	RateLimitCapacity int64 `env:"RATE_LIMIT_CAPACITY" envDefault:"50"`
	RateLimitRefill   int64 `env:"RATE_LIMIT_REFILL"   envDefault:"10"`

	// Restart policy for the supervised proxy worker: give up once more
	// than RestartMaxFaults worker faults land inside RestartWindow.
	RestartMaxFaults int           `env:"RESTART_MAX_FAULTS" envDefault:"5"`
	RestartWindow    time.Duration `env:"RESTART_WINDOW"     envDefault:"60s"`
}

// NewConfig reads the configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	return c, nil
}

// TLS builds the listener TLS configuration, or returns nil when TLS is
// not configured. Setting only one of the cert/key pair is an error.
func (c Config) TLS() (*tls.Config, error) {
	if c.CertFile == "" && c.KeyFile == "" {
		return nil, nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, fmt.Errorf("both SERVER_CERT and SERVER_KEY must be set to enable TLS")
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
