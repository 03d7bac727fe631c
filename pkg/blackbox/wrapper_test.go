package blackbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentguard/blackbox/pkg/attestation"
	"github.com/agentguard/blackbox/pkg/digest"
	"github.com/agentguard/blackbox/pkg/pii"
	"github.com/agentguard/blackbox/pkg/policy"
	"github.com/agentguard/blackbox/pkg/storage"
	"github.com/agentguard/blackbox/pkg/telemetry"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func structuredAgent(result any, traces []string, costCents float64) Agent {
	return AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		return map[string]any{
			"result":     result,
			"traces":     traces,
			"cost_cents": costCents,
		}, nil
	})
}

func TestRun_BlackBoxScenario(t *testing.T) {
	metrics := telemetry.NewInMemoryMetrics()
	store := storage.NewMemoryStore()

	w, err := New(
		policy.Policy{BlackBox: true, KeepHashes: true},
		structuredAgent("ok", []string{"a", "b"}, 1.5),
		WithMetrics(metrics),
		WithStorage(store),
	)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "summarize", map[string]any{"q": "hello"})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "ok", res.Result)
	assert.Nil(t, res.Traces)
	assert.InDelta(t, 1.5, res.CostCents, 1e-9)
	assert.Regexp(t, hexDigest, res.InputHash)
	assert.Regexp(t, hexDigest, res.OutputHash)

	assert.Equal(t, 1, metrics.TraceStrips())
	assert.Equal(t, 1, metrics.RequestCount(StatusSuccess))

	outcome, err := w.GetOutcome(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, res.InputHash, outcome.InputHash)
	assert.Equal(t, res.OutputHash, outcome.OutputHash)
	assert.InDelta(t, 1.5, outcome.CostCents, 1e-9)
}

func TestRun_BreakGlassPreservesTraces(t *testing.T) {
	metrics := telemetry.NewInMemoryMetrics()
	store := storage.NewMemoryStore()

	w, err := New(
		policy.Policy{
			BlackBox:             true,
			IncludePolicyHash:    true,
			BreakGlassRequestIDs: []string{"req-bg"},
		},
		structuredAgent("ok", []string{"a", "b"}, 0),
		WithMetrics(metrics),
		WithStorage(store),
	)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-bg", "debug", nil)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"a", "b"}, res.Traces)
	assert.Equal(t, 1, metrics.BreakGlassCount())
	assert.Equal(t, 0, metrics.TraceStrips())

	att, ok := res.Attestation.(*attestation.Record)
	require.True(t, ok)
	require.NotNil(t, att.BreakGlass)
	assert.True(t, att.BreakGlass.Enabled)
	assert.NotEmpty(t, att.PolicyHash)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-bg", entries[0].RequestID)
	assert.Equal(t, "break_glass", entries[0].Action)
}

func TestRun_HashGating(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		w, err := New(policy.Policy{}, structuredAgent("ok", nil, 0))
		require.NoError(t, err)

		res := w.Run(context.Background(), "req-1", "task", nil)
		assert.Empty(t, res.InputHash)
		assert.Empty(t, res.OutputHash)
	})

	t.Run("enabled and stable", func(t *testing.T) {
		w, err := New(policy.Policy{KeepHashes: true}, structuredAgent("ok", nil, 0))
		require.NoError(t, err)

		first := w.Run(context.Background(), "req-1", "task", map[string]any{"k": "v"})
		second := w.Run(context.Background(), "req-2", "task", map[string]any{"k": "v"})

		assert.Regexp(t, hexDigest, first.InputHash)
		assert.Regexp(t, hexDigest, first.OutputHash)
		assert.Equal(t, first.InputHash, second.InputHash)
		assert.Equal(t, first.OutputHash, second.OutputHash)
	})
}

func TestRun_AgentReceivesOriginalPayload(t *testing.T) {
	var received map[string]any
	agent := AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		received = params
		return "done", nil
	})

	w, err := New(policy.Policy{KeepHashes: true}, agent)
	require.NoError(t, err)

	payload := map[string]any{"email": "a@b.com"}
	res := w.Run(context.Background(), "req-1", "lookup", payload)

	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "a@b.com", received["email"])

	// The input hash covers the redacted form, not the raw payload.
	redactor, err := pii.NewEnhancedRedactor()
	require.NoError(t, err)
	expected, err := digest.SHA256Hex(redactor.Redact(map[string]any{
		"task":    "lookup",
		"payload": payload,
	}))
	require.NoError(t, err)
	assert.Equal(t, expected, res.InputHash)
}

func TestRun_OutputRedactedAfterHashing(t *testing.T) {
	w, err := New(
		policy.Policy{KeepHashes: true},
		structuredAgent("contact a@b.com", nil, 0),
	)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "task", nil)

	assert.Equal(t, "contact [EMAIL_REDACTED]", res.Result)

	rawHash, err := digest.SHA256Hex("contact a@b.com")
	require.NoError(t, err)
	assert.Equal(t, rawHash, res.OutputHash)
}

func TestRun_PolicyRedactorSkipsOutputRedaction(t *testing.T) {
	redactor, err := pii.NewPolicyRedactor(nil, "email")
	require.NoError(t, err)

	w, err := New(
		policy.Policy{},
		structuredAgent("contact a@b.com", nil, 0),
		WithRedactor(redactor),
	)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "task", nil)
	assert.Equal(t, "contact a@b.com", res.Result)
}

func TestRun_PlainResultClassification(t *testing.T) {
	agent := AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		return "plain answer", nil
	})

	w, err := New(policy.Policy{BlackBox: true}, agent)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "task", nil)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "plain answer", res.Result)
	assert.Nil(t, res.Traces)
	assert.Zero(t, res.CostCents)
}

func TestRun_ErrorContainment(t *testing.T) {
	metrics := telemetry.NewInMemoryMetrics()
	agent := AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		return nil, errors.New("model overloaded")
	})

	w, err := New(policy.Policy{KeepHashes: true}, agent, WithMetrics(metrics))
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "task", nil)

	assert.Equal(t, StatusError, res.Status)
	assert.GreaterOrEqual(t, res.LatencyMS, int64(0))
	assert.Empty(t, res.InputHash)
	assert.Empty(t, res.OutputHash)
	assert.Nil(t, res.Traces)

	errResult, ok := res.Result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errResult["error"], "model overloaded")

	errAtt, ok := res.Attestation.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errAtt["error"], "model overloaded")

	assert.Equal(t, 1, metrics.RequestCount(StatusError))
	assert.Zero(t, metrics.TotalCostCents())

	outcome, err := w.GetOutcome(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, outcome.Status)
	assert.Contains(t, outcome.Error, "model overloaded")
}

func TestRun_AgentPanicContained(t *testing.T) {
	agent := AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		panic("nil dereference in agent")
	})

	w, err := New(policy.Policy{}, agent)
	require.NoError(t, err)

	var res Result
	require.NotPanics(t, func() {
		res = w.Run(context.Background(), "req-1", "task", nil)
	})
	assert.Equal(t, StatusError, res.Status)
}

func TestRun_UnsupportedParamsRetriesTaskOnly(t *testing.T) {
	var calls []map[string]any
	agent := AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		calls = append(calls, params)
		if params != nil {
			return nil, ErrUnsupportedParams
		}
		return "ok", nil
	})

	w, err := New(policy.Policy{}, agent)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "task", map[string]any{"k": "v"})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "ok", res.Result)
	require.Len(t, calls, 2)
	assert.NotNil(t, calls[0])
	assert.Nil(t, calls[1])
}

type failingAuditStore struct {
	storage.Store
}

func (failingAuditStore) AppendAudit(context.Context, storage.AuditEntry) error {
	return errors.New("audit log unavailable")
}

func TestRun_BreakGlassAuditFailureStillReturnsResult(t *testing.T) {
	metrics := telemetry.NewInMemoryMetrics()

	w, err := New(
		policy.Policy{BlackBox: true, BreakGlassRequestIDs: []string{"req-bg"}},
		structuredAgent("ok", []string{"t"}, 0),
		WithStorage(failingAuditStore{Store: storage.NewMemoryStore()}),
		WithMetrics(metrics),
	)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-bg", "debug", nil)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"t"}, res.Traces)
	assert.Equal(t, 1, metrics.BreakGlassCount())
}

type failingStore struct {
	storage.Store
}

func (failingStore) StoreOutcome(context.Context, storage.OutcomeRecord) error {
	return errors.New("disk full")
}

func TestRun_StorageFailureStillReturnsResult(t *testing.T) {
	metrics := telemetry.NewInMemoryMetrics()

	w, err := New(
		policy.Policy{},
		structuredAgent("ok", nil, 0),
		WithStorage(failingStore{Store: storage.NewMemoryStore()}),
		WithMetrics(metrics),
	)
	require.NoError(t, err)

	res := w.Run(context.Background(), "req-1", "task", nil)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "ok", res.Result)
	assert.Equal(t, 1, metrics.RequestCount(StatusSuccess))
}

func TestRun_DuplicateRequestIDStillReturnsResult(t *testing.T) {
	w, err := New(policy.Policy{}, structuredAgent("ok", nil, 0))
	require.NoError(t, err)

	first := w.Run(context.Background(), "req-1", "task", nil)
	second := w.Run(context.Background(), "req-1", "task", nil)

	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, StatusSuccess, second.Status)
}

func TestGetOutcome_NotFound(t *testing.T) {
	w, err := New(policy.Policy{}, structuredAgent("ok", nil, 0))
	require.NoError(t, err)

	_, err = w.GetOutcome(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNew_NilAgent(t *testing.T) {
	_, err := New(policy.Policy{}, nil)
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestNew_UnknownStorageBackend(t *testing.T) {
	_, err := New(policy.Policy{}, structuredAgent("ok", nil, 0),
		WithStorageBackend("postgres", ""))
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)
}

func TestRun_AttestationFlagGating(t *testing.T) {
	cases := []struct {
		name   string
		policy policy.Policy
		want   bool
	}{
		{"no flags", policy.Policy{}, false},
		{"code sha only", policy.Policy{IncludeCodeSHA: true}, true},
		{"policy hash only", policy.Policy{IncludePolicyHash: true}, true},
		{"both", policy.Policy{IncludeCodeSHA: true, IncludePolicyHash: true}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := New(tc.policy, structuredAgent("ok", nil, 0), WithCodeSHA("abc123"))
			require.NoError(t, err)

			res := w.Run(context.Background(), "req-1", "task", nil)
			require.Equal(t, StatusSuccess, res.Status)

			if !tc.want {
				assert.Nil(t, res.Attestation)
				return
			}
			att, ok := res.Attestation.(*attestation.Record)
			require.True(t, ok)
			assert.Equal(t, "req-1", att.RequestID)
			if tc.policy.IncludeCodeSHA {
				assert.Equal(t, "abc123", att.CodeSHA)
			} else {
				assert.Empty(t, att.CodeSHA)
			}
			if tc.policy.IncludePolicyHash {
				assert.Regexp(t, hexDigest, att.PolicyHash)
			} else {
				assert.Empty(t, att.PolicyHash)
			}
		})
	}
}

func TestRun_ConcurrentRequests(t *testing.T) {
	metrics := telemetry.NewInMemoryMetrics()
	store := storage.NewMemoryStore()

	w, err := New(
		policy.Policy{BlackBox: true, KeepHashes: true},
		structuredAgent("ok", []string{"t"}, 0.5),
		WithMetrics(metrics),
		WithStorage(store),
	)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := w.Run(context.Background(), fmt.Sprintf("req-%d", i), "task", nil)
			assert.Equal(t, StatusSuccess, res.Status)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, metrics.RequestCount(StatusSuccess))
	assert.Equal(t, n, metrics.TraceStrips())
	assert.InDelta(t, float64(n)*0.5, metrics.TotalCostCents(), 1e-9)

	for i := 0; i < n; i++ {
		_, err := w.GetOutcome(context.Background(), fmt.Sprintf("req-%d", i))
		assert.NoError(t, err)
	}
}
