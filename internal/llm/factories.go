package llm

import (
	"time"

	"go.uber.org/zap"

	"github.com/Devliang24/casecraft/internal/llm/providers/deepseek"
	"github.com/Devliang24/casecraft/internal/llm/providers/glm"
	"github.com/Devliang24/casecraft/internal/llm/providers/local"
	"github.com/Devliang24/casecraft/internal/llm/providers/qwen"
)

// RegisterBuiltins wires the four built-in provider kinds from spec.md §4.5
// into registry, so Configure+Get works for any provider whose Kind is one
// of "glm", "qwen", "deepseek", "local".
func RegisterBuiltins(registry *Registry, logger *zap.Logger) {
	registry.RegisterKind("glm", func(cfg ProviderConfig) (Provider, error) {
		return glm.New(glm.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: time.Duration(cfg.Timeout) * time.Second, RateLimit: cfg.RateLimit,
		}, logger), nil
	})
	registry.RegisterKind("qwen", func(cfg ProviderConfig) (Provider, error) {
		return qwen.New(qwen.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: time.Duration(cfg.Timeout) * time.Second, RateLimit: cfg.RateLimit,
		}, logger), nil
	})
	registry.RegisterKind("deepseek", func(cfg ProviderConfig) (Provider, error) {
		return deepseek.New(deepseek.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: time.Duration(cfg.Timeout) * time.Second, RateLimit: cfg.RateLimit,
		}, logger), nil
	})
	registry.RegisterKind("local", func(cfg ProviderConfig) (Provider, error) {
		return local.New(local.Config{
			Model: cfg.Model, BaseURL: cfg.BaseURL,
			Timeout: time.Duration(cfg.Timeout) * time.Second, MaxWorkers: cfg.MaxWorkers,
			RateLimit: cfg.RateLimit,
		}, logger), nil
	})
}
