// cmd/gatewayd/main.go
// Package main implements the entry point for the gateway service.
// It wires the storage backend, the device resolver, the rate-limit
// oracle, the event publisher, and the NATS transport, and exposes a
// side HTTP listener for health and metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelfeed/pixelfeed-gateway-go/internal/auth"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/config"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/event"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/gateway"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/ratelimit"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/storage"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/telemetry"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/transport"
)

// main initializes all components, starts the transport and the side HTTP
// listener, and handles graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("pixelfeed-gateway")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		store, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		store = storage.NewMemory()
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisher(cfg.EventsURL)
	defer pub.Close()

	// Device resolver: external auth service when configured, otherwise
	// the store-backed resolver. Either way, wrap it in the TTL cache.
	var resolver auth.Resolver
	if cfg.AuthURL != "" {
		resolver = auth.NewClient(cfg.AuthURL)
	} else {
		resolver = auth.NewStoreResolver(store)
	}
	resolver = auth.NewCache(resolver, time.Duration(cfg.AuthCacheTTLSeconds)*time.Second)

	// Rate-limit oracle
	var limiter ratelimit.Oracle
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewTokenBucket(cfg.RatePerDevice, cfg.RatePerAccount, cfg.RateBurst)
	} else {
		limiter = ratelimit.NewAllowAll()
	}

	router := gateway.NewRouter(store, resolver, limiter, pub, cfg.DeviceMaxLimit)

	// Connect the device transport. In dev the service can come up without
	// a broker for handler-level testing over the HTTP health surface.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var adapter *transport.Adapter
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("pixelfeed-gateway"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		adapter, err = transport.NewAdapter(nc, router)
		if err != nil {
			logger.Error("failed to create transport adapter", "error", err)
			os.Exit(1)
		}
		if err := adapter.Start(ctx); err != nil {
			logger.Error("failed to start transport adapter", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no NATS URL configured, device transport disabled")
	}

	// Side HTTP listener: health, readiness, and Prometheus metrics.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if pg, ok := store.(interface{ Ping(context.Context) error }); ok {
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintln(w, "storage unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%s", cfg.MetricsPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics listener starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown: stop accepting requests, let in-flight
	// handlers finish, then release the storage connections.
	logger.Info("shutting down gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if adapter != nil {
		if err := adapter.Close(); err != nil {
			logger.Error("transport shutdown failed", "error", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics listener shutdown failed", "error", err)
	}

	if postgresStore, ok := store.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("gateway exited")
}
