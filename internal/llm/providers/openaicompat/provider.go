// Package openaicompat is the shared implementation for CaseCraft's
// OpenAI-compatible chat-completion providers. Qwen, DeepSeek, and Local
// embed this directly; GLM uses it as its HTTP transport but applies its
// own error-mapping table.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Devliang24/casecraft/internal/ccerrors"
	"github.com/Devliang24/casecraft/internal/llm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the configuration for one OpenAI-compatible provider
// instance.
type Config struct {
	ProviderName   string
	APIKey         string
	BaseURL        string
	DefaultModel   string
	Timeout        time.Duration
	MaxWorkers     int
	EndpointPath   string // defaults to "/v1/chat/completions"
	ModelsEndpoint string // defaults to "/v1/models"

	// MapError lets a provider override the default HTTP-status mapping
	// (GLM's status table differs from the generic one below).
	MapError func(status int, msg string) error

	// RateLimit caps outbound requests per second against this provider,
	// independent of its own 429 responses. Zero disables the limiter.
	RateLimit float64
}

// Provider is the base HTTP transport for OpenAI-compatible APIs.
type Provider struct {
	Cfg     Config
	Client  *http.Client
	Logger  *zap.Logger
	limiter *rate.Limiter
}

// New constructs a Provider with sensible defaults.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MapError == nil {
		cfg.MapError = func(status int, msg string) error { return MapHTTPError(status, msg, cfg.ProviderName) }
	}
	p := &Provider{
		Cfg:    cfg,
		Client: &http.Client{Timeout: cfg.Timeout},
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return p
}

// wait blocks until the configured rate limiter admits one request, or
// returns ctx's error if it's cancelled first. A nil limiter (the default,
// RateLimit unset) never blocks.
func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return &ccerrors.Cancelled{Stage: "rate limit wait"}
	}
	return nil
}

func (p *Provider) Name() string     { return p.Cfg.ProviderName }
func (p *Provider) MaxWorkers() int  { return p.Cfg.MaxWorkers }

func (p *Provider) ValidateConfig() error {
	if strings.TrimSpace(p.Cfg.APIKey) == "" {
		return fmt.Errorf("%s: api_key is required", p.Cfg.ProviderName)
	}
	if strings.TrimSpace(p.Cfg.BaseURL) == "" {
		return fmt.Errorf("%s: base_url is required", p.Cfg.ProviderName)
	}
	return nil
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// HealthCheck probes the models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if err := p.wait(ctx); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return err
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return &ccerrors.ProviderTransportError{Provider: p.Name(), Kind: ccerrors.Transient, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.Cfg.MapError(resp.StatusCode, readErrMsg(resp.Body))
	}
	return nil
}

// Generate performs a chat completion, streaming if req.Stream is set,
// otherwise simulating the four-stage progress curve.
func (p *Provider) Generate(ctx context.Context, req *llm.Request, progress llm.ProgressFunc, attempt int) (*llm.Response, error) {
	if progress != nil {
		progress(llm.ProgressEvent{Stage: llm.StageQueued, Percent: 0})
	}

	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.Name(), err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.Name(), err)
	}
	p.buildHeaders(httpReq)

	if progress != nil {
		progress(llm.ProgressEvent{Stage: llm.StageStarted, Percent: 10})
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, &ccerrors.ProviderTransportError{Provider: p.Name(), Kind: ccerrors.Transient, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.Cfg.MapError(resp.StatusCode, readErrMsg(resp.Body))
	}

	if req.Stream {
		content, usage, err := p.readSSE(ctx, resp.Body, progress)
		if err != nil {
			return nil, err
		}
		if usage.TotalTokens == 0 {
			usage = estimatedUsage(req.Prompt, content)
		}
		return &llm.Response{Content: content, Model: model, Usage: usage, Latency: time.Since(start), CreatedAt: time.Now().UTC()}, nil
	}

	var oaResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &ccerrors.ProviderTransportError{Provider: p.Name(), Kind: ccerrors.Transient, Cause: err}
	}

	llm.SimulateProgress(progress, attempt)

	content := ""
	if len(oaResp.Choices) > 0 {
		content = oaResp.Choices[0].Message.Content
	}
	usage := llm.Usage{}
	if oaResp.Usage != nil {
		usage = llm.Usage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		}
	} else {
		usage = estimatedUsage(req.Prompt, content)
	}

	return &llm.Response{Content: content, Model: model, Usage: usage, Latency: time.Since(start), CreatedAt: time.Now().UTC()}, nil
}

func (p *Provider) readSSE(ctx context.Context, body io.ReadCloser, progress llm.ProgressFunc) (string, llm.Usage, error) {
	reader := bufio.NewReader(body)
	var content strings.Builder
	var usage llm.Usage
	chunks := 0

	for {
		select {
		case <-ctx.Done():
			return content.String(), usage, &ccerrors.Cancelled{Stage: "streaming"}
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return content.String(), usage, nil
			}
			return content.String(), usage, &ccerrors.ProviderTransportError{Provider: p.Name(), Kind: ccerrors.Transient, Cause: err}
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return content.String(), usage, nil
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
			content.WriteString(chunk.Choices[0].Delta.Content)
		}
		if chunk.Usage != nil {
			usage = llm.Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
		}
		chunks++
		if progress != nil {
			pct := 10 + chunks
			if pct > 90 {
				pct = 90
			}
			progress(llm.ProgressEvent{Stage: llm.StageStreaming, Percent: pct})
		}
	}
}

func estimatedUsage(prompt, completion string) llm.Usage {
	p, pOK := llm.CountTokens(prompt)
	c, cOK := llm.CountTokens(completion)
	if pOK && cOK {
		return llm.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c, Estimated: true}
	}
	englishish := llm.IsEnglishish(prompt + " " + completion)
	p = llm.EstimateTokens(prompt, englishish)
	c = llm.EstimateTokens(completion, englishish)
	return llm.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c, Estimated: true}
}

func readErrMsg(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp errorEnvelope
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(data)
}

// MapHTTPError is the default HTTP-status-to-error mapping shared by every
// OpenAI-compatible provider, per spec.md §4.5's transport taxonomy.
func MapHTTPError(status int, msg string, provider string) error {
	switch status {
	case http.StatusTooManyRequests:
		return &ccerrors.ProviderTransportError{Provider: provider, Kind: ccerrors.RateLimited, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &ccerrors.ProviderTransportError{Provider: provider, Kind: ccerrors.Transient, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	case http.StatusRequestTimeout:
		return &ccerrors.ProviderTransportError{Provider: provider, Kind: ccerrors.Timeout, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	case 529:
		return &ccerrors.ProviderTransportError{Provider: provider, Kind: ccerrors.Transient, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
	default:
		if status >= 500 {
			return &ccerrors.ProviderTransportError{Provider: provider, Kind: ccerrors.Transient, HTTPStatus: status, Cause: fmt.Errorf("%s", msg)}
		}
		return &ccerrors.ProviderFatalError{Provider: provider, HTTPStatus: status, Message: msg}
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      chatMessage  `json:"message"`
	Delta        *chatMessage `json:"delta,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
