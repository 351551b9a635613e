// Package deepseek implements CaseCraft's DeepSeek provider client. Thin
// wrapper over the shared OpenAI-compatible transport. max_workers=3 per
// spec.md §4.5.
package deepseek

import (
	"context"
	"time"

	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.deepseek.com"
const defaultModel = "deepseek-chat"

// Config is DeepSeek-specific provider configuration.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// Provider is CaseCraft's DeepSeek client.
type Provider struct {
	*openaicompat.Provider
}

// New constructs a DeepSeek provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "deepseek",
			APIKey:       cfg.APIKey,
			BaseURL:      baseURL,
			DefaultModel: model,
			Timeout:      cfg.Timeout,
			MaxWorkers:   3,
			RateLimit:    cfg.RateLimit,
		}, logger),
	}
}

func (p *Provider) Generate(ctx context.Context, req *llm.Request, progress llm.ProgressFunc, attempt int) (*llm.Response, error) {
	return p.Provider.Generate(ctx, req, progress, attempt)
}
