// Command casecraft wires CaseCraft's generation core together: load
// config, load and filter the spec, score and assign endpoints, run the
// scheduler, and report. Flag parsing, the interactive wizard, and
// human-friendly progress rendering are thin shells outside the hard
// core — this just wires the components and maps outcomes to exit codes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Devliang24/casecraft/internal/artifact"
	"github.com/Devliang24/casecraft/internal/assign"
	"github.com/Devliang24/casecraft/internal/config"
	"github.com/Devliang24/casecraft/internal/fingerprint"
	"github.com/Devliang24/casecraft/internal/llm"
	"github.com/Devliang24/casecraft/internal/scheduler"
	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
	"github.com/Devliang24/casecraft/internal/usage"
)

const (
	exitSuccess         = 0
	exitConfigOrSpec    = 1
	exitAllFailed       = 2
	exitPartialFailure  = 3
	exitCancelledByUser = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := os.Getenv("CASECRAFT_CONFIG")
	force := os.Getenv("CASECRAFT_FORCE") == "true"

	cfg, err := config.NewLoader().WithConfigPath(configPath).WithValidator((*config.Config).Validate).Load()
	if err != nil {
		logger.Error("configuration error", zap.Error(err))
		return exitConfigOrSpec
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoints, err := spec.NewLoader().Load(cfg.Spec.Location)
	if err != nil {
		logger.Error("spec error", zap.Error(err))
		return exitConfigOrSpec
	}

	filtered := spec.Filter{
		IncludeTags:  cfg.Spec.IncludeTags,
		ExcludeTags:  cfg.Spec.ExcludeTags,
		IncludePaths: cfg.Spec.IncludePaths,
		ExcludePaths: cfg.Spec.ExcludePaths,
	}.Apply(endpoints)

	registry := llm.NewRegistry()
	llm.RegisterBuiltins(registry, logger)
	for _, p := range cfg.Providers {
		registry.Configure(llm.ProviderConfig{
			Name: p.Name, Kind: p.Kind, Model: p.Model, APIKey: p.APIKey, BaseURL: p.BaseURL,
			Timeout: int(p.Timeout.Seconds()), MaxRetries: p.MaxRetries, Temperature: p.Temperature,
			MaxTokens: p.MaxTokens, Stream: p.Stream, MaxWorkers: p.MaxWorkers, Role: p.Role,
			RateLimit: p.RateLimit,
		})
	}

	providerNames := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providerNames = append(providerNames, p.Name)
	}

	strategy, err := buildStrategy(cfg, providerNames)
	if err != nil {
		logger.Error("assignment strategy error", zap.Error(err))
		return exitConfigOrSpec
	}

	assignments, err := strategy.Assign(filtered)
	if err != nil {
		logger.Error("assignment error", zap.Error(err))
		return exitConfigOrSpec
	}

	store := fingerprint.Open(cfg.Output.StateFile, logger)
	writer := artifact.Writer{Dir: cfg.Output.Dir, TagNested: cfg.Output.TagNested}
	agg := usage.NewAggregator(nil)
	engine := scheduler.NewEngine(registry, store, writer, agg, logger)

	jobs := make([]scheduler.Job, len(filtered))
	for i := range filtered {
		ep := filtered[i]
		jobs[i] = scheduler.Job{
			ID:              scheduler.NewJobID(),
			Endpoint:        &ep,
			Fingerprint:     fingerprint.Compute(&ep),
			PrimaryProvider: assignments[i],
			FallbackChain:   cfg.Assignment.Fallback,
			Budget:          scoring.BudgetFor(&ep),
		}
	}

	go drainEvents(engine)

	results, _ := engine.Run(ctx, jobs, force)

	fmt.Println(agg.Report().String())

	return exitCodeFor(ctx, results)
}

func buildStrategy(cfg *config.Config, providerNames []string) (assign.Strategy, error) {
	switch cfg.Assignment.Strategy {
	case "round_robin":
		return assign.RoundRobin{Providers: providerNames}, nil
	case "random":
		return assign.Random{Providers: providerNames}, nil
	case "complexity":
		return complexityStrategyFromNames(providerNames), nil
	case "manual":
		rules := make([]assign.Rule, 0, len(cfg.Assignment.Rules))
		for _, r := range cfg.Assignment.Rules {
			rule, err := parseManualRule(r)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
		return assign.Manual{Rules: rules}, nil
	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", cfg.Assignment.Strategy)
	}
}

// complexityStrategyFromNames is a placeholder role resolver for the
// "complexity" strategy: a full wiring looks up each role via
// Registry.RoleProvider against the configured ProviderConfig.Role tags.
// Kept minimal here since role resolution is config-shaped, not core logic.
func complexityStrategyFromNames(names []string) assign.Strategy {
	roles := assign.Roles{}
	if len(names) > 0 {
		roles.Fastest = names[0]
		roles.Balanced = names[0]
		roles.Strongest = names[len(names)-1]
	}
	return assign.Complexity{Roles: roles}
}

func parseManualRule(raw string) (assign.Rule, error) {
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == ':' {
			return assign.Rule{Pattern: raw[:i], Provider: raw[i+1:]}, nil
		}
	}
	return assign.Rule{}, fmt.Errorf("manual rule %q is not in pattern:provider form", raw)
}

func drainEvents(e *scheduler.Engine) {
	for range e.Events {
		// Human-readable progress rendering is a thin shell outside the
		// hard core (spec.md §1); this just keeps the channel unblocked.
	}
}

func exitCodeFor(ctx context.Context, results []scheduler.Result) int {
	if ctx.Err() != nil {
		return exitCancelledByUser
	}

	total, failed := len(results), 0
	for _, r := range results {
		if r.State == scheduler.StateFailed {
			failed++
		}
	}
	switch {
	case total == 0:
		return exitSuccess
	case failed == total:
		return exitAllFailed
	case failed > 0:
		return exitPartialFailure
	default:
		return exitSuccess
	}
}
