package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentguard/blackbox/pkg/blackbox"
	"github.com/agentguard/blackbox/pkg/middleware"
	"github.com/agentguard/blackbox/pkg/policy"
	"github.com/agentguard/blackbox/pkg/storage"
	"github.com/agentguard/blackbox/pkg/telemetry"
)

const defaultListenAddr = ":8080"

// newServeCmd creates the serve command
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a monitored echo API",
		Long: `Starts an HTTP server whose /echo endpoint is monitored by the
black-box wrapper. Exposes /metrics (Prometheus), /outcomes/<id> for
persisted records, and /healthz.

The policy file, when given, is watched: edits swap in a fresh wrapper
without restarting the server.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("addr", "a", defaultListenAddr, "Address to listen on")
	cmd.Flags().StringP("policy", "p", "", "Path to policy YAML (watched for changes)")
	cmd.Flags().String("storage", "memory", "Storage backend (memory, sqlite)")
	cmd.Flags().String("dsn", "blackbox.db", "SQLite DSN (used with --storage sqlite)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP gRPC endpoint for trace export")
	cmd.Flags().Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLoggerFromFlags(cmd)

	addr, _ := cmd.Flags().GetString("addr")
	policyPath, _ := cmd.Flags().GetString("policy")
	backend, _ := cmd.Flags().GetString("storage")
	dsn, _ := cmd.Flags().GetString("dsn")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	otlpInsecure, _ := cmd.Flags().GetBool("otlp-insecure")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "blackbox",
		Endpoint:    otlpEndpoint,
		Insecure:    otlpInsecure,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracing shutdown", "error", err)
		}
	}()

	var pol policy.Policy
	if policyPath != "" {
		pol, err = policy.LoadFile(policyPath)
		if err != nil {
			return err
		}
	}

	store, err := storage.Open(backend, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	metrics := telemetry.NewPromMetrics()

	srv, err := newServer(pol, store, metrics, logger)
	if err != nil {
		return err
	}

	if policyPath != "" {
		watcher, err := policy.Watch(policyPath, logger, func(p policy.Policy) {
			if err := srv.reload(p); err != nil {
				logger.Error("policy reload failed, previous policy stays active", "error", err)
			}
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Error("close policy watcher", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", addr, "storage", backend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}

// server holds the pieces that survive policy reloads. The monitored
// handler is swapped atomically; in-flight requests finish on the old one.
type server struct {
	logger  *slog.Logger
	store   storage.Store
	metrics *telemetry.PromMetrics

	monitored atomic.Pointer[http.Handler]
}

func newServer(pol policy.Policy, store storage.Store, metrics *telemetry.PromMetrics, logger *slog.Logger) (*server, error) {
	s := &server{
		logger:  logger,
		store:   store,
		metrics: metrics,
	}
	if err := s.reload(pol); err != nil {
		return nil, err
	}
	return s, nil
}

// reload builds a fresh monitor around the new policy. Storage and metrics
// are shared across reloads so history and counters survive.
func (s *server) reload(pol policy.Policy) error {
	monitor, err := middleware.NewMonitor(pol,
		[]middleware.Option{middleware.WithLogger(s.logger)},
		blackbox.WithStorage(s.store),
		blackbox.WithMetrics(s.metrics),
		blackbox.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}

	handler := monitor.Wrap(http.HandlerFunc(echoHandler))
	s.monitored.Store(&handler)
	return nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/outcomes/", s.handleOutcome)
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		(*s.monitored.Load()).ServeHTTP(w, r)
	})
	return mux
}

func (s *server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/outcomes/")
	if id == "" {
		http.Error(w, "missing request id", http.StatusBadRequest)
		return
	}

	outcome, err := s.store.GetOutcome(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "outcome read failed", "request_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(outcome); err != nil {
		s.logger.ErrorContext(r.Context(), "outcome encode failed", "request_id", id, "error", err)
	}
}

// echoHandler is the monitored sample application.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = w.Write(body)
}
