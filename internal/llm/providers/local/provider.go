// Package local implements CaseCraft's Local provider client, for
// Ollama/vLLM-compatible deployments. Unlike the fixed SaaS concurrency
// limits of GLM/Qwen/DeepSeek, Local's max_workers is operator-configured
// since it depends on the local deployment's own GPU/CPU capacity.
package local

import (
	"context"
	"time"

	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "http://localhost:11434"

// Config is Local-specific provider configuration.
type Config struct {
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxWorkers int
	RateLimit  float64
}

// Provider is CaseCraft's Local client.
type Provider struct {
	*openaicompat.Provider
}

// New constructs a Local provider. A zero MaxWorkers defaults to 1 (the
// safest assumption for an unconfigured local deployment).
func New(cfg Config, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "local",
			APIKey:       "unused",
			BaseURL:      baseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			MaxWorkers:   maxWorkers,
			RateLimit:    cfg.RateLimit,
		}, logger),
	}
}

// ValidateConfig for Local does not require an API key, unlike the SaaS
// providers it shares a transport with.
func (p *Provider) ValidateConfig() error {
	return nil
}

func (p *Provider) Generate(ctx context.Context, req *llm.Request, progress llm.ProgressFunc, attempt int) (*llm.Response, error) {
	return p.Provider.Generate(ctx, req, progress, attempt)
}
