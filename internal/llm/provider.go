// Package llm provides the homogeneous provider contract CaseCraft dispatches
// generation jobs through, and the built-in GLM/Qwen/DeepSeek/Local clients.
package llm

import (
	"context"
	"time"
)

// Request is a provider-neutral generation request assembled by the prompt
// builder. SystemPrompt fixes the output contract; Prompt carries the
// endpoint-specific task body.
type Request struct {
	SystemPrompt string
	Prompt       string
	Model        string
	Temperature  float32
	MaxTokens    int
	Stream       bool
}

// Usage reports token counts for one generation. Estimated is true when the
// provider's response omitted usage and the client fell back to a heuristic.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool
}

// Response is a provider-neutral generation result.
type Response struct {
	Content   string
	Model     string
	Usage     Usage
	Latency   time.Duration
	CreatedAt time.Time
}

// ProgressStage names the discrete points a job's progress can be observed
// at, per the non-streaming simulated-progress curve.
type ProgressStage string

const (
	StageQueued     ProgressStage = "queued"
	StageStarted    ProgressStage = "started"
	StageStreaming  ProgressStage = "streaming"
	StageValidating ProgressStage = "validating"
)

// ProgressEvent reports a single point along a job's lifecycle.
type ProgressEvent struct {
	Stage   ProgressStage
	Percent int
}

// ProgressFunc receives progress events from Generate. It must not block;
// the provider does not retry a send a caller drops.
type ProgressFunc func(ProgressEvent)

// Provider is the capability set every LLM backend implements, matching the
// {generate, max_workers, validate_config, health_check} contract.
type Provider interface {
	// Name returns the provider's registry key (e.g. "glm").
	Name() string

	// MaxWorkers declares this provider's concurrency cap. Static per
	// instance; the scheduler sizes a bounded pool from it.
	MaxWorkers() int

	// ValidateConfig checks the provider's configuration without making a
	// network call (non-empty API key, well-formed base URL, etc).
	ValidateConfig() error

	// HealthCheck performs a lightweight reachability probe.
	HealthCheck(ctx context.Context) error

	// Generate runs one completion, forwarding progress events to progress
	// if non-nil. attempt is 1 for the first try and increments on each
	// retry so non-streaming providers can apply the progress rollback.
	// Transport and HTTP failures are returned as a
	// *ccerrors.ProviderTransportError or *ccerrors.ProviderFatalError;
	// cancellation while waiting or streaming as a *ccerrors.Cancelled.
	Generate(ctx context.Context, req *Request, progress ProgressFunc, attempt int) (*Response, error)
}

// SimulateProgress emits the four-stage simulated-progress curve
// (10% -> 80% -> 90% -> 100%) used by non-streaming providers, applying a
// 30%-of-current rollback (minimum 10%) when attempt > 1 so repeated
// retries show an honest regression instead of restarting from zero.
func SimulateProgress(progress ProgressFunc, attempt int) {
	if progress == nil {
		return
	}
	stages := []struct {
		stage   ProgressStage
		percent int
	}{
		{StageStarted, 10},
		{StageStreaming, 80},
		{StageStreaming, 90},
		{StageValidating, 100},
	}
	for _, s := range stages {
		pct := s.percent
		if attempt > 1 {
			rollback := pct * 30 / 100
			if rollback < 10 {
				rollback = 10
			}
			pct -= rollback
			if pct < 1 {
				pct = 1
			}
		}
		progress(ProgressEvent{Stage: s.stage, Percent: pct})
	}
}

// EstimateTokens approximates token count by splitting on whitespace and
// applying a language-specific factor, per the documented "approximate"
// fallback used when a provider's response omits usage and the tiktoken
// cl100k_base encoding could not be loaded.
func EstimateTokens(text string, englishish bool) int {
	words := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	factor := 1.5
	if englishish {
		factor = 1.3
	}
	return int(float64(words)*factor) + 1
}
