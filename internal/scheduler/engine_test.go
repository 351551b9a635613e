package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Devliang24/casecraft/internal/artifact"
	"github.com/Devliang24/casecraft/internal/ccerrors"
	"github.com/Devliang24/casecraft/internal/fingerprint"
	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
	"github.com/Devliang24/casecraft/internal/usage"
)

const validJSONCases = `[
  {"name": "list widgets", "priority": "P0", "method": "GET", "path": "/widgets", "expected_status": 200, "test_type": "positive"}
]`

// stubProvider is a fake llm.Provider whose Generate behavior is scripted
// per-call, standing in for a real HTTP-backed provider in engine tests.
type stubProvider struct {
	name      string
	calls     atomic.Int32
	script    func(attempt int) (*llm.Response, error)
	workers   int
	healthErr error
}

func (p *stubProvider) Name() string          { return p.name }
func (p *stubProvider) MaxWorkers() int       { return p.workers }
func (p *stubProvider) ValidateConfig() error { return nil }

func (p *stubProvider) HealthCheck(context.Context) error {
	if p.healthErr != nil {
		return p.healthErr
	}
	return nil
}

func (p *stubProvider) Generate(ctx context.Context, req *llm.Request, progress llm.ProgressFunc, attempt int) (*llm.Response, error) {
	p.calls.Add(1)
	return p.script(attempt)
}

func newTestEngine(t *testing.T, providers map[string]*stubProvider) (*Engine, *fingerprint.Store) {
	t.Helper()

	registry := llm.NewRegistry()
	for name, p := range providers {
		p := p
		registry.RegisterKind(name, func(cfg llm.ProviderConfig) (llm.Provider, error) { return p, nil })
		registry.Configure(llm.ProviderConfig{Name: name, Kind: name, MaxWorkers: 1})
	}

	store := fingerprint.Open(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	writer := artifact.Writer{Dir: t.TempDir()}
	agg := usage.NewAggregator(nil)
	engine := NewEngine(registry, store, writer, agg, zap.NewNop())
	return engine, store
}

func testJob(primary string, fallback ...string) Job {
	e := spec.Endpoint{Method: spec.MethodGet, Path: "/widgets"}
	return Job{
		ID:              NewJobID(),
		Endpoint:        &e,
		Fingerprint:     "fp-1",
		PrimaryProvider: primary,
		FallbackChain:   fallback,
		Budget:          scoring.Budget{Positive: 1},
	}
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return &llm.Response{Content: validJSONCases, Model: "m1"}, nil
	}}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"primary": primary})
	go func() {
		for range engine.Events {
		}
	}()

	results, err := engine.Run(context.Background(), []Job{testJob("primary")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, 1, results[0].TestCount)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestRunFallsBackOnFatalProviderError(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return nil, &ccerrors.ProviderFatalError{Provider: "primary", HTTPStatus: 401, Message: "bad key"}
	}}
	fallback := &stubProvider{name: "fallback", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return &llm.Response{Content: validJSONCases, Model: "m2"}, nil
	}}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"primary": primary, "fallback": fallback})
	go func() {
		for range engine.Events {
		}
	}()

	results, err := engine.Run(context.Background(), []Job{testJob("primary", "fallback")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, "fallback", results[0].Provider)
	assert.Equal(t, "primary", results[0].FallbackFrom)
}

func TestRunFailsJobWhenWholeChainExhausted(t *testing.T) {
	failing := &stubProvider{name: "only", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return nil, &ccerrors.ProviderFatalError{Provider: "only", HTTPStatus: 400, Message: "nope"}
	}}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"only": failing})
	go func() {
		for range engine.Events {
		}
	}()

	results, err := engine.Run(context.Background(), []Job{testJob("only")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateFailed, results[0].State)
	assert.Error(t, results[0].Err)
}

func TestRunRetriesInvalidOutputBeforeFallingBack(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, script: func(attempt int) (*llm.Response, error) {
		// Always invalid: zero test cases in an otherwise well-formed array.
		return &llm.Response{Content: `[]`, Model: "m1"}, nil
	}}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"primary": primary})
	go func() {
		for range engine.Events {
		}
	}()

	results, err := engine.Run(context.Background(), []Job{testJob("primary")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateFailed, results[0].State)
	// 1 initial + maxInvalidOutputRetries correction attempts, all against the same provider.
	assert.Equal(t, int32(1+maxInvalidOutputRetries), primary.calls.Load())
}

func TestRunSkipsWhenFingerprintUnchanged(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return &llm.Response{Content: validJSONCases, Model: "m1"}, nil
	}}
	engine, store := newTestEngine(t, map[string]*stubProvider{"primary": primary})
	go func() {
		for range engine.Events {
		}
	}()

	job := testJob("primary")
	_, err := engine.Run(context.Background(), []Job{job}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), primary.calls.Load())

	_ = store // state was recorded by the first run; re-run the identical job

	results, err := engine.Run(context.Background(), []Job{job}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateSkipped, results[0].State)
	assert.Equal(t, int32(1), primary.calls.Load(), "skipped job must not call the provider again")
}

func TestRunExcludesUnhealthyProviderAndFallsBack(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, healthErr: assert.AnError}
	fallback := &stubProvider{name: "fallback", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return &llm.Response{Content: validJSONCases, Model: "m2"}, nil
	}}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"primary": primary, "fallback": fallback})
	go func() {
		for range engine.Events {
		}
	}()

	results, err := engine.Run(context.Background(), []Job{testJob("primary", "fallback")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, "fallback", results[0].Provider)
	assert.Equal(t, int32(0), primary.calls.Load(), "unhealthy primary must never be dispatched to")
}

func TestRunFailsJobWithNoProviderConfiguredWhenWholeChainUnhealthy(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, healthErr: assert.AnError}
	fallback := &stubProvider{name: "fallback", workers: 1, healthErr: assert.AnError}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"primary": primary, "fallback": fallback})
	go func() {
		for range engine.Events {
		}
	}()

	results, err := engine.Run(context.Background(), []Job{testJob("primary", "fallback")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateFailed, results[0].State)

	var noProvider *ccerrors.NoProviderConfiguredError
	require.ErrorAs(t, results[0].Err, &noProvider)
	assert.Equal(t, int32(0), primary.calls.Load())
	assert.Equal(t, int32(0), fallback.calls.Load())
}

func TestRunCancelledContextYieldsCancelledState(t *testing.T) {
	primary := &stubProvider{name: "primary", workers: 1, script: func(attempt int) (*llm.Response, error) {
		return &llm.Response{Content: validJSONCases}, nil
	}}
	engine, _ := newTestEngine(t, map[string]*stubProvider{"primary": primary})
	go func() {
		for range engine.Events {
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := engine.Run(ctx, []Job{testJob("primary")}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateCancelled, results[0].State)
}
