// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package main runs the ACLS proxy daemon: the proxy front-end under the
// supervision engine, plus metrics and health HTTP endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	acls "github.com/crawley/ACLS-protocol-library"
	"github.com/crawley/ACLS-protocol-library/examples/logging"
	"github.com/crawley/ACLS-protocol-library/pkg/breaker"
	"github.com/crawley/ACLS-protocol-library/pkg/client"
	"github.com/crawley/ACLS-protocol-library/pkg/facility"
	"github.com/crawley/ACLS-protocol-library/pkg/health"
	"github.com/crawley/ACLS-protocol-library/pkg/metrics"
	"github.com/crawley/ACLS-protocol-library/pkg/proxy"
	"github.com/crawley/ACLS-protocol-library/pkg/ratelimit"
	"github.com/crawley/ACLS-protocol-library/pkg/service"
)

const (
	envPrefix   = "ACLS_"
	serviceName = "acls-proxy"
)

// errServiceFailed ends the process group when the supervisor gives up.
var errServiceFailed = errors.New("proxy service failed")

func main() {
	// .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := acls.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	registry, err := facility.Load(cfg.FacilityFile)
	if err != nil {
		logger.Error("Failed to load facility registry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Facility registry loaded",
		slog.Int("facilities", len(registry.Facilities())),
		slog.String("server", registry.ServerAddress()),
		slog.Bool("use_project", registry.UseProject()))

	tlsConfig, err := cfg.TLS()
	if err != nil {
		logger.Error("Failed to configure TLS", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.New("aclsproxy")

	cb := breaker.New(breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
		IsFailure:    client.IsTransportFault,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("backend", registry.ServerAddress()),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.BreakerState.WithLabelValues(registry.ServerAddress()).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTrips.WithLabelValues(registry.ServerAddress()).Inc()
		}
	})

	cl := client.New(client.Config{
		Address:     registry.ServerAddress(),
		DialTimeout: cfg.DialTimeout,
		Timeout:     cfg.ServerTimeout,
		Breaker:     cb,
		Metrics:     m,
		Logger:      logger,
	})

	limiter := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill, 0)
	defer limiter.Close()

	worker := proxy.New(proxy.Config{
		Address:         cfg.ListenAddress,
		TLSConfig:       tlsConfig,
		ShutdownTimeout: cfg.ShutdownTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		Limiter:         limiter,
		Metrics:         m,
		Logger:          logger,
	}, registry, cl, logging.New(logger))

	svc := service.New(service.Config{
		Name:    serviceName,
		Worker:  worker,
		Decider: restartPolicy(cfg, m, logger),
		Logger:  logger,
	})

	healthChecker := health.NewChecker(10 * time.Second)
	healthChecker.Register("service", health.ServiceCheck(svc))
	healthChecker.Register("acls_server", health.DialCheck(registry.ServerAddress(), cfg.DialTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(gctx, fmt.Sprintf(":%d", cfg.MetricsPort), metricsMux(), "metrics", logger)
	})
	g.Go(func() error {
		return serveHTTP(gctx, fmt.Sprintf(":%d", cfg.HealthPort), healthMux(healthChecker), "health", logger)
	})
	g.Go(func() error {
		return watchService(gctx, svc, m, logger)
	})

	if err := svc.Startup(); err != nil {
		logger.Error("Failed to start proxy service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	<-gctx.Done()

	// Orderly join of the supervised service before process exit: nothing
	// is abandoned mid-session.
	failed := svc.State() == service.StateFailed
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Service shutdown incomplete", slog.String("error", err.Error()))
	}
	// A detached teardown still settles; give it a moment before exiting.
	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	if err := svc.AwaitShutdown(awaitCtx); err != nil {
		logger.Warn("Service still winding down at exit", slog.String("error", err.Error()))
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, errServiceFailed) {
			failed = true
		} else if !errors.Is(err, context.Canceled) {
			logger.Error("Component terminated with error", slog.String("error", err.Error()))
		}
	}

	if failed {
		logger.Error("ACLS proxy terminated after unrecoverable failure")
		os.Exit(1)
	}
	logger.Info("ACLS proxy stopped")
}

// restartPolicy builds the worker restart decider: relaunch transient
// faults within the configured budget, refuse outright when the listen
// address is unusable, and count every approved relaunch.
func restartPolicy(cfg acls.Config, m *metrics.Metrics, logger *slog.Logger) service.RestartDecider {
	threshold := service.NewThresholdRestartDecider(cfg.RestartMaxFaults, cfg.RestartWindow)
	return service.RestartDeciderFunc(func(fault error) bool {
		if isBindFault(fault) {
			logger.Error("Listen address unusable, not restarting",
				slog.String("error", fault.Error()))
			return false
		}
		if !threshold.Restartable(fault) {
			return false
		}
		m.WorkerRestarts.WithLabelValues(serviceName).Inc()
		return true
	})
}

// isBindFault reports whether the worker died because its listen address
// cannot be bound; relaunching cannot help until an operator intervenes.
func isBindFault(fault error) bool {
	return errors.Is(fault, syscall.EADDRINUSE) || errors.Is(fault, syscall.EACCES)
}

// watchService mirrors the supervised service state into the state gauge
// and ends the process group when the supervisor gives up for good.
func watchService(ctx context.Context, svc service.Service, m *metrics.Metrics, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := svc.State()
			m.ServiceState.WithLabelValues(serviceName).Set(float64(st))
			if st == service.StateFailed {
				logger.Error("Proxy service failed permanently")
				return errServiceFailed
			}
		}
	}
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthMux(checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())
	return mux
}

// serveHTTP runs one auxiliary HTTP server until ctx is cancelled, then
// shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, mux *http.ServeMux, name string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("HTTP server started",
		slog.String("server", name),
		slog.String("address", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown incomplete",
				slog.String("server", name),
				slog.String("error", err.Error()))
		}
		return nil
	}
}
