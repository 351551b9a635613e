package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Devliang24/casecraft/internal/artifact"
	"github.com/Devliang24/casecraft/internal/ccerrors"
	"github.com/Devliang24/casecraft/internal/fingerprint"
	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/llm/retry"
	"github.com/Devliang24/casecraft/internal/prompt"
	"github.com/Devliang24/casecraft/internal/usage"
)

// maxInvalidOutputRetries is the "≤2 additional attempts" from spec.md §4.8
// — up to 3 tries total against the same provider before falling back.
const maxInvalidOutputRetries = 2

// Engine is the scheduler & fallback engine from spec.md §4.8: it groups
// jobs by primary provider, bounds intra-provider concurrency, runs the
// prompt-builder -> provider-client -> validator pipeline per attempt, and
// walks the fallback chain sequentially on exhaustion.
type Engine struct {
	Registry *llm.Registry
	Store    *fingerprint.Store
	Writer   artifact.Writer
	Usage    *usage.Aggregator
	Logger   *zap.Logger

	// Events receives every progress event the scheduler emits. Nil is
	// valid — sends are dropped when no one is listening.
	Events chan Event

	retryPolicy *retry.Policy

	mu    sync.Mutex
	pools map[string]*providerPool
}

// NewEngine constructs an Engine with the default transport backoff policy.
func NewEngine(registry *llm.Registry, store *fingerprint.Store, writer artifact.Writer, agg *usage.Aggregator, logger *zap.Logger) *Engine {
	return &Engine{
		Registry:    registry,
		Store:       store,
		Writer:      writer,
		Usage:       agg,
		Logger:      logger,
		Events:      make(chan Event, 256),
		retryPolicy: retry.DefaultPolicy(),
		pools:       map[string]*providerPool{},
	}
}

func (e *Engine) emit(ev Event) {
	if e.Events == nil {
		return
	}
	select {
	case e.Events <- ev:
	default:
		// A full buffer means no one is draining fast enough; drop rather
		// than block the worker that pays for every retry/backoff already.
	}
}

func (e *Engine) poolFor(name string, maxWorkers int) *providerPool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[name]
	if !ok {
		p = newProviderPool(name, maxWorkers)
		e.pools[name] = p
	}
	return p
}

// Run health-checks every provider named across jobs once, then dispatches
// every job concurrently (inter-provider parallelism is unbounded;
// intra-provider parallelism is capped by each provider's pool) and returns
// one Result per job, in the same order as jobs. force disables the
// incremental-skip shortcut.
func (e *Engine) Run(ctx context.Context, jobs []Job, force bool) ([]Result, error) {
	healthy := e.healthCheckAll(ctx, providerNamesIn(jobs))

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = e.runJob(gctx, job, force, healthy)
			return nil
		})
	}

	// errgroup.Wait's error is always nil here: runJob never returns an
	// error from the goroutine itself, only via results[i].Err, so one
	// job's terminal failure never aborts the others (spec.md §4.8: "a
	// job that fails through the entire chain records a terminal
	// failure; other jobs continue").
	_ = g.Wait()
	return results, nil
}

// providerNamesIn collects the distinct provider names referenced across
// every job's primary+fallback chain, in first-seen order.
func providerNamesIn(jobs []Job) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		for _, name := range append([]string{job.PrimaryProvider}, job.FallbackChain...) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// healthCheckAll calls HealthCheck once per named provider, concurrently,
// and reports which ones are reachable. A provider that fails to construct
// (unknown name/kind) or fails its health check is marked unhealthy rather
// than erroring the whole run: runJob prunes it from each job's fallback
// chain instead, closing the spec's "health-check pass before scheduling"
// gap.
func (e *Engine) healthCheckAll(ctx context.Context, names []string) map[string]bool {
	healthy := make(map[string]bool, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := e.checkOne(ctx, name)
			mu.Lock()
			healthy[name] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()
	return healthy
}

func (e *Engine) checkOne(ctx context.Context, name string) bool {
	client, err := e.Registry.Get(name)
	if err != nil {
		e.Logger.Warn("provider unavailable before scheduling", zap.String("provider", name), zap.Error(err))
		return false
	}
	if err := client.HealthCheck(ctx); err != nil {
		e.Logger.Warn("provider failed health check, excluding from scheduling", zap.String("provider", name), zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) runJob(ctx context.Context, job Job, force bool, healthy map[string]bool) Result {
	key := job.Endpoint.Key()

	if st, ok := e.Store.Lookup(key); ok && e.Store.ShouldSkip(key, job.Fingerprint, force) {
		e.emit(Event{JobID: job.ID, EndpointKey: key, State: StateSkipped})
		e.Store.RecordSkip()
		return Result{Job: job, State: StateSkipped, ArtifactPath: st.ArtifactPath}
	}

	e.emit(Event{JobID: job.ID, EndpointKey: key, State: StateQueued})

	fullChain := append([]string{job.PrimaryProvider}, job.FallbackChain...)
	chain := make([]string, 0, len(fullChain))
	for _, name := range fullChain {
		if healthy[name] {
			chain = append(chain, name)
		}
	}
	if len(chain) == 0 {
		err := &ccerrors.NoProviderConfiguredError{Endpoint: key}
		e.emit(Event{JobID: job.ID, EndpointKey: key, State: StateFailed, Err: err})
		e.Store.RecordFailure()
		return Result{Job: job, State: StateFailed, Err: err}
	}

	var fallbackFrom string
	totalRetries := 0

	for idx, providerName := range chain {
		if ctx.Err() != nil {
			return e.cancelledResult(job, key)
		}

		client, err := e.Registry.Get(providerName)
		if err != nil {
			e.Logger.Warn("provider unavailable, skipping in chain", zap.String("provider", providerName), zap.Error(err))
			fallbackFrom = providerName
			continue
		}

		cases, resp, retries, err := e.runProvider(ctx, job, client, providerName, key)
		totalRetries += retries

		switch {
		case err == nil:
			return e.finish(job, key, providerName, fallbackFrom, cases, resp, totalRetries)

		case isCancelled(err):
			return e.cancelledResult(job, key)

		default:
			e.Logger.Info("provider exhausted for job, trying fallback",
				zap.String("endpoint", key), zap.String("provider", providerName), zap.Error(err))
			fallbackFrom = providerName
			if idx == len(chain)-1 {
				e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateFailed, Err: err})
				e.Store.RecordFailure()
				return Result{Job: job, State: StateFailed, Provider: providerName, FallbackFrom: fallbackFrom, RetryCount: totalRetries, Err: err}
			}
			e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateFallback})
		}
	}

	err := &ccerrors.NoProviderConfiguredError{Endpoint: key}
	e.Store.RecordFailure()
	return Result{Job: job, State: StateFailed, FallbackFrom: fallbackFrom, RetryCount: totalRetries, Err: err}
}

// runProvider runs the prompt -> generate -> validate pipeline against one
// provider, retrying up to maxInvalidOutputRetries additional times on a
// validator rejection with a correction-suffix prompt. It returns a non-nil
// error when the provider's chain slot is exhausted (validator never
// satisfied, or a fatal/exhausted-retries transport failure), signalling
// the caller to advance to the next provider in the fallback chain.
func (e *Engine) runProvider(ctx context.Context, job Job, client llm.Provider, providerName, key string) ([]artifact.TestCase, *llm.Response, int, error) {
	pool := e.poolFor(providerName, client.MaxWorkers())
	systemPrompt, taskPrompt := prompt.Build(job.Endpoint, job.Budget)
	retryer := retry.New(e.retryPolicy, e.Logger)

	var lastErr error
	for attempt := 1; attempt <= 1+maxInvalidOutputRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, attempt - 1, &ccerrors.Cancelled{Stage: "awaiting provider slot"}
		}

		e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateRunning, Attempt: attempt})

		req := &llm.Request{SystemPrompt: systemPrompt, Prompt: taskPrompt}
		if attempt > 1 {
			req.Prompt = taskPrompt + prompt.CorrectionSuffix(lastErr.Error())
		}

		var resp *llm.Response
		start := time.Now()
		genErr := retryer.Do(ctx, func() error {
			return pool.Run(ctx, func(ctx context.Context) error {
				out, genErr := client.Generate(ctx, req, func(ev llm.ProgressEvent) {
					e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateRunning, Attempt: attempt, Percent: ev.Percent})
				}, attempt)
				if genErr != nil {
					return genErr
				}
				resp = out
				return nil
			})
		})
		duration := time.Since(start)

		if genErr != nil {
			e.recordUsage(providerName, 0, 0, duration, outcomeFor(genErr), attempt-1)
			if isCancelled(genErr) {
				return nil, nil, attempt - 1, genErr
			}
			// Transport error exhausted retries, or a fatal error: this
			// provider's slot in the chain is spent.
			return nil, nil, attempt - 1, genErr
		}

		e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateValidated, Attempt: attempt})

		cases, parseErr := artifact.Parse(resp.Content)
		if parseErr == nil {
			parseErr = artifact.Validate(cases, job.Endpoint, job.Budget)
		}
		if parseErr == nil {
			e.recordUsage(providerName, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, duration, usage.OutcomeSuccess, attempt-1)
			return cases, resp, attempt - 1, nil
		}

		lastErr = parseErr
		e.recordUsage(providerName, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, duration, usage.OutcomeInvalidOutput, attempt-1)
		e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateRetrying, Attempt: attempt, Err: parseErr})
	}

	return nil, nil, maxInvalidOutputRetries, fmt.Errorf("validator never satisfied after %d attempts: %w", 1+maxInvalidOutputRetries, lastErr)
}

func (e *Engine) finish(job Job, key, providerName, fallbackFrom string, cases []artifact.TestCase, resp *llm.Response, retries int) Result {
	existing, _ := e.Store.Lookup(key)

	result, err := e.Writer.Write(job.Endpoint, cases, job.Fingerprint, existing.Fingerprint)
	if err != nil {
		e.Logger.Error("artifact write failed", zap.String("endpoint", key), zap.Error(err))
		e.Store.RecordFailure()
		return Result{Job: job, State: StateFailed, Provider: providerName, FallbackFrom: fallbackFrom, RetryCount: retries, Err: err}
	}

	e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateWritten})

	if !result.Skipped {
		model := providerName
		if resp != nil && resp.Model != "" {
			model = resp.Model
		}
		st := fingerprint.EndpointState{
			Fingerprint:  job.Fingerprint,
			GeneratedAt:  resp.CreatedAt,
			Provider:     providerName,
			FallbackFrom: fallbackFrom,
			Model:        model,
			TestCount:    len(cases),
			RetryCount:   retries,
			ArtifactPath: result.Path,
		}
		if resp != nil {
			st.PromptTokens = resp.Usage.PromptTokens
			st.CompletionTokens = resp.Usage.CompletionTokens
		}
		if err := e.Store.Record(key, st); err != nil {
			// State I/O failure after a successful job logs a warning but
			// does not invalidate the artifact, per spec.md §7.
			e.Logger.Warn("state record failed after successful write", zap.String("endpoint", key), zap.Error(err))
		}
	}

	e.emit(Event{JobID: job.ID, EndpointKey: key, Provider: providerName, State: StateDone})
	return Result{
		Job: job, State: StateDone, Provider: providerName, FallbackFrom: fallbackFrom,
		ArtifactPath: result.Path, TestCount: len(cases), RetryCount: retries,
	}
}

func (e *Engine) cancelledResult(job Job, key string) Result {
	e.emit(Event{JobID: job.ID, EndpointKey: key, State: StateCancelled})
	return Result{Job: job, State: StateCancelled, Err: &ccerrors.Cancelled{Stage: "job dispatch"}}
}

func (e *Engine) recordUsage(provider string, promptTokens, completionTokens int, d time.Duration, outcome usage.Outcome, retries int) {
	if e.Usage == nil {
		return
	}
	e.Usage.Append(usage.Record{
		Provider: provider, PromptTokens: promptTokens, CompletionTokens: completionTokens,
		Duration: d, Outcome: outcome, Retries: retries,
	})
}

func outcomeFor(err error) usage.Outcome {
	var transportErr *ccerrors.ProviderTransportError
	if errors.As(err, &transportErr) {
		switch transportErr.Kind {
		case ccerrors.RateLimited:
			return usage.OutcomeRateLimited
		case ccerrors.Timeout:
			return usage.OutcomeTimeout
		default:
			return usage.OutcomeTransportError
		}
	}
	if isCancelled(err) {
		return usage.OutcomeCancelled
	}
	return usage.OutcomeTransportError
}

func isCancelled(err error) bool {
	var c *ccerrors.Cancelled
	return errors.As(err, &c) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// NewJobID generates a fresh job identifier.
func NewJobID() string {
	return uuid.NewString()
}
