// Package blackbox wraps an opaque agent so that every invocation is
// redacted, hashed, persisted and attested according to an immutable policy.
// The agent itself always receives real data; only what is audited, stored
// or returned to the caller is scrubbed.
package blackbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentguard/blackbox/pkg/attestation"
	"github.com/agentguard/blackbox/pkg/digest"
	"github.com/agentguard/blackbox/pkg/pii"
	"github.com/agentguard/blackbox/pkg/policy"
	"github.com/agentguard/blackbox/pkg/storage"
	"github.com/agentguard/blackbox/pkg/telemetry"
)

// Wrapper monitors a single agent. It is safe for concurrent use: Run calls
// are independent and share only the metrics collector and the store.
type Wrapper struct {
	policy    policy.Policy
	agent     Agent
	redactor  pii.Redactor
	enhanced  bool
	store     storage.Store
	ownsStore bool
	metrics   telemetry.Metrics
	generator *attestation.Generator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	codeSHA   string
}

// Option customizes a Wrapper.
type Option func(*Wrapper) error

// WithStorage injects a store. The caller retains ownership and must close
// it; Close on the wrapper becomes a no-op for the store.
func WithStorage(store storage.Store) Option {
	return func(w *Wrapper) error {
		w.store = store
		return nil
	}
}

// WithStorageBackend opens a store by backend name ("memory" or "sqlite").
// The wrapper owns the store and closes it on Close.
func WithStorageBackend(backend, dsn string) Option {
	return func(w *Wrapper) error {
		store, err := storage.Open(backend, dsn)
		if err != nil {
			return err
		}
		w.store = store
		w.ownsStore = true
		return nil
	}
}

// WithMetrics injects a metrics collector.
func WithMetrics(m telemetry.Metrics) Option {
	return func(w *Wrapper) error {
		w.metrics = m
		return nil
	}
}

// WithRedactor replaces the default enhanced redactor. Output redaction only
// applies when the replacement is itself the enhanced variant; the simpler
// policy-driven redactor scrubs input only.
func WithRedactor(r pii.Redactor) Option {
	return func(w *Wrapper) error {
		w.redactor = r
		_, w.enhanced = r.(*pii.EnhancedRedactor)
		return nil
	}
}

// WithExtraRules builds the enhanced redactor with additional rules appended
// after the builtin catalogue.
func WithExtraRules(rules ...pii.Rule) Option {
	return func(w *Wrapper) error {
		r, err := pii.NewEnhancedRedactor(rules...)
		if err != nil {
			return err
		}
		w.redactor = r
		w.enhanced = true
		return nil
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wrapper) error {
		w.logger = logger
		return nil
	}
}

// WithCodeSHA overrides the code version identifier used in attestations.
func WithCodeSHA(sha string) Option {
	return func(w *Wrapper) error {
		w.codeSHA = sha
		return nil
	}
}

// WithTracer injects a tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Wrapper) error {
		w.tracer = tracer
		return nil
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Wrapper) error {
		w.now = now
		return nil
	}
}

// New builds a Wrapper around the agent. Defaults: enhanced redactor,
// in-memory store and metrics, slog default logger. An attestation
// generator is constructed only when a policy flag requires one.
func New(p policy.Policy, agent Agent, opts ...Option) (*Wrapper, error) {
	if agent == nil {
		return nil, ErrNoAgent
	}

	w := &Wrapper{
		policy: policy.New(p),
		agent:  agent,
		logger: slog.Default(),
		tracer: otel.Tracer("blackbox.wrapper"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	if w.redactor == nil {
		r, err := pii.NewEnhancedRedactor()
		if err != nil {
			return nil, err
		}
		w.redactor = r
		w.enhanced = true
	}
	if w.store == nil {
		w.store = storage.NewMemoryStore()
		w.ownsStore = true
	}
	if w.metrics == nil {
		w.metrics = telemetry.NewInMemoryMetrics()
	}

	if w.policy.IncludeCodeSHA || w.policy.IncludePolicyHash {
		genOpts := []attestation.Option{attestation.WithClock(w.now)}
		if w.codeSHA != "" {
			genOpts = append(genOpts, attestation.WithCodeSHA(w.codeSHA))
		}
		gen, err := attestation.NewGenerator(w.policy, genOpts...)
		if err != nil {
			return nil, err
		}
		w.generator = gen
	}

	return w, nil
}

// Run executes one monitored request. It never returns an error and never
// panics: every failure is folded into an error-status Result.
func (w *Wrapper) Run(ctx context.Context, requestID, task string, params map[string]any) Result {
	start := w.now()

	ctx, span := w.tracer.Start(ctx, "blackbox.run",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	isBreakGlass := w.policy.IsBreakGlass(requestID)
	if isBreakGlass {
		w.metrics.RecordBreakGlass()
		w.auditBreakGlass(ctx, requestID)
	}

	redactedInput := w.redactor.Redact(map[string]any{
		"task":    task,
		"payload": params,
	})

	var inputHash string
	if w.policy.KeepHashes {
		hash, err := digest.SHA256Hex(redactedInput)
		if err != nil {
			return w.fail(ctx, span, requestID, start, isBreakGlass, fmt.Errorf("blackbox: hash input: %w", err))
		}
		inputHash = hash
	}

	// The agent sees the original parameters, never the redacted copy.
	raw, err := w.invokeAgent(ctx, task, params)
	if err != nil {
		return w.fail(ctx, span, requestID, start, isBreakGlass, err)
	}

	resp := classifyResponse(raw)

	traceStripped := false
	if w.policy.BlackBox && !isBreakGlass {
		resp.traces = nil
		w.metrics.RecordTraceStrip()
		traceStripped = true
	}

	var outputHash string
	if w.policy.KeepHashes {
		hash, err := digest.SHA256Hex(resp.result)
		if err != nil {
			return w.fail(ctx, span, requestID, start, isBreakGlass, fmt.Errorf("blackbox: hash output: %w", err))
		}
		outputHash = hash
	}

	// Output hashing precedes output redaction: the hash anchors the true
	// result while the visible result stays scrubbed.
	if w.enhanced {
		resp.result = w.redactor.Redact(resp.result)
	}

	elapsed := w.now().Sub(start)
	latencyMS := elapsed.Milliseconds()

	var att *attestation.Record
	if w.generator != nil {
		att = w.generator.Generate(requestID, inputHash, outputHash)
		if isBreakGlass {
			att.MarkBreakGlass("request id listed in break_glass_request_ids", w.now())
		}
	}

	record := storage.OutcomeRecord{
		RequestID:   requestID,
		Status:      StatusSuccess,
		InputHash:   inputHash,
		OutputHash:  outputHash,
		LatencyMS:   latencyMS,
		CostCents:   resp.costCents,
		CreatedAt:   w.now().UTC(),
		Attestation: att,
	}
	if err := w.store.StoreOutcome(ctx, record); err != nil {
		w.logger.ErrorContext(ctx, "outcome persist failed",
			slog.String("request_id", requestID),
			slog.Any("error", err))
	}

	w.metrics.RecordRequest(StatusSuccess, latencyMS, resp.costCents)
	telemetry.RecordRunMetrics(ctx, telemetry.RunMetrics{
		Status:     StatusSuccess,
		BreakGlass: isBreakGlass,
		TraceStrip: traceStripped,
		Duration:   elapsed,
		CostCents:  resp.costCents,
	})

	span.SetAttributes(
		attribute.Bool("run.break_glass", isBreakGlass),
		attribute.Bool("run.trace_strip", traceStripped),
	)

	result := Result{
		RequestID:  requestID,
		Status:     StatusSuccess,
		Result:     resp.result,
		Traces:     resp.traces,
		LatencyMS:  latencyMS,
		CostCents:  resp.costCents,
		InputHash:  inputHash,
		OutputHash: outputHash,
	}
	if att != nil {
		result.Attestation = att
	}
	return result
}

// GetOutcome is a pass-through read of the persisted outcome.
func (w *Wrapper) GetOutcome(ctx context.Context, requestID string) (storage.OutcomeRecord, error) {
	return w.store.GetOutcome(ctx, requestID)
}

// Close releases the store when the wrapper owns it.
func (w *Wrapper) Close() error {
	if w.ownsStore {
		return w.store.Close()
	}
	return nil
}

// auditBreakGlass writes the activation to the audit log. Failures are
// logged, never propagated: auditing must not fail the request.
func (w *Wrapper) auditBreakGlass(ctx context.Context, requestID string) {
	entry := storage.AuditEntry{
		RequestID: requestID,
		Action:    "break_glass",
		Reason:    "request id listed in break_glass_request_ids",
		Timestamp: w.now().UTC(),
	}
	if err := w.store.AppendAudit(ctx, entry); err != nil {
		w.logger.WarnContext(ctx, "break-glass audit append failed",
			slog.String("request_id", requestID),
			slog.Any("error", err))
	}
}

// invokeAgent calls the agent, retrying once with the task only when the
// agent rejects the parameter shape. Panics are converted to errors so they
// flow through the normal failure path.
func (w *Wrapper) invokeAgent(ctx context.Context, task string, params map[string]any) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = fmt.Errorf("blackbox: agent panic: %v", r)
		}
	}()

	raw, err = w.agent.Run(ctx, task, params)
	if errors.Is(err, ErrUnsupportedParams) {
		raw, err = w.agent.Run(ctx, task, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("blackbox: agent execution: %w", err)
	}
	return raw, nil
}

// fail persists and reports an error outcome and builds the error Result.
// Failure descriptions carry no payload content, so they are stored as-is.
func (w *Wrapper) fail(ctx context.Context, span trace.Span, requestID string, start time.Time, breakGlass bool, cause error) Result {
	desc := cause.Error()
	elapsed := w.now().Sub(start)
	latencyMS := elapsed.Milliseconds()

	span.RecordError(cause)
	span.SetStatus(codes.Error, desc)

	record := storage.OutcomeRecord{
		RequestID: requestID,
		Status:    StatusError,
		Error:     desc,
		LatencyMS: latencyMS,
		CreatedAt: w.now().UTC(),
	}
	if err := w.store.StoreOutcome(ctx, record); err != nil {
		w.logger.ErrorContext(ctx, "error outcome persist failed",
			slog.String("request_id", requestID),
			slog.Any("error", err))
	}

	w.metrics.RecordRequest(StatusError, latencyMS, 0)
	telemetry.RecordRunMetrics(ctx, telemetry.RunMetrics{
		Status:     StatusError,
		BreakGlass: breakGlass,
		Duration:   elapsed,
	})

	return Result{
		RequestID:   requestID,
		Status:      StatusError,
		Result:      map[string]any{"error": desc},
		LatencyMS:   latencyMS,
		Attestation: map[string]any{"error": desc},
	}
}
