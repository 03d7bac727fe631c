// Package middleware monitors HTTP handlers through the black-box wrapper.
// Requests and responses pass through unmodified; what gets audited and
// persisted is the redacted, hashed view of each exchange.
package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentguard/blackbox/pkg/blackbox"
	"github.com/agentguard/blackbox/pkg/policy"
)

// RequestIDHeader carries the request identifier. A missing header gets a
// generated UUID.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBodyBytes caps how much of a request body is captured for
// auditing. The handler still receives the full body.
const DefaultMaxBodyBytes = 1 << 20

type contextKey string

const requestIDContextKey contextKey = "requestID"

// RequestIDFromContext extracts the request identifier assigned by the
// monitor.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}

// invocation carries one HTTP exchange through the wrapper to the agent.
type invocationKey struct{}

type invocation struct {
	next    http.Handler
	capture *responseCapture
	req     *http.Request
}

// Monitor runs every HTTP exchange through a black-box wrapper.
type Monitor struct {
	wrapper  *blackbox.Wrapper
	logger   *slog.Logger
	maxBody  int64
	spanName string
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithMaxBodyBytes caps the audited portion of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(m *Monitor) { m.maxBody = n }
}

// NewMonitor builds a Monitor with its own wrapper around the given policy.
// wrapperOpts are passed through to the wrapper (storage, metrics, redactor).
func NewMonitor(p policy.Policy, opts []Option, wrapperOpts ...blackbox.Option) (*Monitor, error) {
	m := &Monitor{
		logger:   slog.Default(),
		maxBody:  DefaultMaxBodyBytes,
		spanName: "blackbox.http",
	}
	for _, opt := range opts {
		opt(m)
	}

	wrapper, err := blackbox.New(p, blackbox.AgentFunc(dispatchInvocation), wrapperOpts...)
	if err != nil {
		return nil, fmt.Errorf("middleware: build wrapper: %w", err)
	}
	m.wrapper = wrapper
	return m, nil
}

// Wrapper exposes the underlying wrapper, for outcome reads.
func (m *Monitor) Wrapper() *blackbox.Wrapper {
	return m.wrapper
}

// Close releases wrapper-owned resources.
func (m *Monitor) Close() error {
	return m.wrapper.Close()
}

// Wrap instruments a handler. The wrapped handler receives the original
// request; the wrapper records the redacted view of the exchange.
func (m *Monitor) Wrap(next http.Handler) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBody))
		if err != nil {
			m.logger.ErrorContext(r.Context(), "request body read failed",
				slog.String("request_id", requestID),
				slog.Any("error", err))
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		rest, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), bytes.NewReader(rest)))

		capture := &responseCapture{ResponseWriter: w}
		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, invocationKey{}, &invocation{
			next:    next,
			capture: capture,
			req:     r.WithContext(context.WithValue(r.Context(), requestIDContextKey, requestID)),
		})

		task := r.Method + " " + r.URL.Path
		params := map[string]any{
			"body":  string(body),
			"query": r.URL.RawQuery,
		}

		res := m.wrapper.Run(ctx, requestID, task, params)

		if res.Status == blackbox.StatusError && !capture.wroteHeader {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	})

	return otelhttp.NewHandler(handler, m.spanName)
}

// dispatchInvocation is the fixed agent behind every monitor: it replays the
// exchange carried in the context against the next handler.
func dispatchInvocation(ctx context.Context, _ string, _ map[string]any) (any, error) {
	inv, ok := ctx.Value(invocationKey{}).(*invocation)
	if !ok {
		return nil, errors.New("middleware: no invocation in context")
	}

	inv.next.ServeHTTP(inv.capture, inv.req)

	return map[string]any{
		"result": map[string]any{
			"status_code": inv.capture.status(),
			"body":        inv.capture.buf.String(),
		},
	}, nil
}

// responseCapture tees the response into a buffer while streaming it to the
// client unchanged.
type responseCapture struct {
	http.ResponseWriter
	code        int
	buf         bytes.Buffer
	wroteHeader bool
}

func (c *responseCapture) WriteHeader(code int) {
	if c.wroteHeader {
		return
	}
	c.code = code
	c.wroteHeader = true
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

func (c *responseCapture) status() int {
	if !c.wroteHeader {
		return http.StatusOK
	}
	return c.code
}
