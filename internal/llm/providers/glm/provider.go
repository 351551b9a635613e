// Package glm implements CaseCraft's GLM (Zhipu BigModel) provider client.
// GLM is configured with max_workers=1 per spec.md §4.5 — the SaaS API's
// documented per-key concurrency ceiling.
package glm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Devliang24/casecraft/internal/ccerrors"
	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://open.bigmodel.cn"

// Config is GLM-specific provider configuration.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// Provider is CaseCraft's GLM client.
type Provider struct {
	base *openaicompat.Provider
}

// New constructs a GLM provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{}
	p.base = openaicompat.New(openaicompat.Config{
		ProviderName:   "glm",
		APIKey:         cfg.APIKey,
		BaseURL:        baseURL,
		DefaultModel:   cfg.Model,
		Timeout:        cfg.Timeout,
		MaxWorkers:     1,
		EndpointPath:   "/api/paas/v4/chat/completions",
		ModelsEndpoint: "/api/paas/v4/models",
		MapError:       mapError,
		RateLimit:      cfg.RateLimit,
	}, logger)
	return p
}

func (p *Provider) Name() string    { return "glm" }
func (p *Provider) MaxWorkers() int { return p.base.MaxWorkers() }

func (p *Provider) ValidateConfig() error { return p.base.ValidateConfig() }

func (p *Provider) HealthCheck(ctx context.Context) error { return p.base.HealthCheck(ctx) }

func (p *Provider) Generate(ctx context.Context, req *llm.Request, progress llm.ProgressFunc, attempt int) (*llm.Response, error) {
	resp, err := p.base.Generate(ctx, req, progress, attempt)
	if err != nil {
		return nil, err
	}
	resp.Model = cmpString(resp.Model, "glm")
	return resp, nil
}

func cmpString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// mapError reproduces GLM's observed HTTP-status-to-error-code table:
// 401/403 are fatal auth failures; 429 and 5xx/529 are retryable; 400 is
// fatal unless the message names a quota/credit exhaustion, in which case
// it is still fatal (non-retryable) but tagged distinctly for reporting.
func mapError(status int, msg string) error {
	switch status {
	case http.StatusUnauthorized:
		return &ccerrors.ProviderFatalError{Provider: "glm", HTTPStatus: status, Message: msg}
	case http.StatusForbidden:
		return &ccerrors.ProviderFatalError{Provider: "glm", HTTPStatus: status, Message: msg}
	case http.StatusTooManyRequests:
		return &ccerrors.ProviderTransportError{Provider: "glm", Kind: ccerrors.RateLimited, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			return &ccerrors.ProviderFatalError{Provider: "glm", HTTPStatus: status, Message: "quota exceeded: " + msg}
		}
		return &ccerrors.ProviderFatalError{Provider: "glm", HTTPStatus: status, Message: msg}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &ccerrors.ProviderTransportError{Provider: "glm", Kind: ccerrors.Transient, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	case 529:
		return &ccerrors.ProviderTransportError{Provider: "glm", Kind: ccerrors.Transient, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	default:
		if status >= 500 {
			return &ccerrors.ProviderTransportError{Provider: "glm", Kind: ccerrors.Transient, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
		}
		return &ccerrors.ProviderFatalError{Provider: "glm", HTTPStatus: status, Message: msg}
	}
}
