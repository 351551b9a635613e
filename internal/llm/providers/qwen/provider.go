// Package qwen implements CaseCraft's Qwen (Alibaba DashScope) provider
// client. Thin wrapper over the shared OpenAI-compatible transport, the
// way agentflow's qwen provider only overrides naming and endpoints.
// max_workers=3 per spec.md §4.5.
package qwen

import (
	"context"
	"time"

	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://dashscope.aliyuncs.com"
const defaultModel = "qwen-plus"

// Config is Qwen-specific provider configuration.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// Provider is CaseCraft's Qwen client.
type Provider struct {
	*openaicompat.Provider
}

// New constructs a Qwen provider.
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
			ProviderName:   "qwen",
			APIKey:         cfg.APIKey,
			BaseURL:        baseURL,
			DefaultModel:   model,
			Timeout:        cfg.Timeout,
			MaxWorkers:     3,
			EndpointPath:   "/compatible-mode/v1/chat/completions",
			ModelsEndpoint: "/compatible-mode/v1/models",
			RateLimit:      cfg.RateLimit,
		}, logger),
	}
}

func (p *Provider) Generate(ctx context.Context, req *llm.Request, progress llm.ProgressFunc, attempt int) (*llm.Response, error) {
	return p.Provider.Generate(ctx, req, progress, attempt)
}
