// Package usage accumulates per-provider generation counters and renders
// the final run report, per spec.md §4.10.
package usage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome classifies one completed attempt, matching spec.md §3's
// UsageRecord.outcome enumeration.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeInvalidOutput  Outcome = "invalid_output"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeCancelled      Outcome = "cancelled"
)

// Record is one attempt's outcome, appended atomically to the Aggregator.
type Record struct {
	Provider         string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
	Outcome          Outcome
	Retries          int
}

type providerCounters struct {
	attempts         int
	successes        int
	failuresByKind   map[Outcome]int
	promptTokens     int
	completionTokens int
	wallTime         time.Duration
	retries          int
}

// Aggregator is the mutex-protected per-provider counter set described in
// spec.md §4.10, with parallel Prometheus counters/histograms for operators
// who scrape /metrics.
type Aggregator struct {
	mu        sync.Mutex
	providers map[string]*providerCounters

	attemptsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
}

// NewAggregator constructs an Aggregator. reg may be nil, in which case the
// Prometheus collectors are created but never registered (useful in tests
// that don't care about /metrics exposition).
func NewAggregator(reg prometheus.Registerer) *Aggregator {
	a := &Aggregator{
		providers: map[string]*providerCounters{},
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecraft_provider_attempts_total",
			Help: "Generation attempts per provider by outcome.",
		}, []string{"provider", "outcome"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecraft_provider_tokens_total",
			Help: "Tokens consumed per provider by direction.",
		}, []string{"provider", "direction"}),
		durationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casecraft_provider_request_duration_seconds",
			Help:    "Generation request latency per provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(a.attemptsTotal, a.tokensTotal, a.durationSeconds)
	}
	return a
}

// Append records one attempt outcome.
func (a *Aggregator) Append(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pc, ok := a.providers[r.Provider]
	if !ok {
		pc = &providerCounters{failuresByKind: map[Outcome]int{}}
		a.providers[r.Provider] = pc
	}

	pc.attempts++
	pc.promptTokens += r.PromptTokens
	pc.completionTokens += r.CompletionTokens
	pc.wallTime += r.Duration
	pc.retries += r.Retries
	if r.Outcome == OutcomeSuccess {
		pc.successes++
	} else {
		pc.failuresByKind[r.Outcome]++
	}

	a.attemptsTotal.WithLabelValues(r.Provider, string(r.Outcome)).Inc()
	a.tokensTotal.WithLabelValues(r.Provider, "prompt").Add(float64(r.PromptTokens))
	a.tokensTotal.WithLabelValues(r.Provider, "completion").Add(float64(r.CompletionTokens))
	a.durationSeconds.WithLabelValues(r.Provider).Observe(r.Duration.Seconds())
}

// ProviderReport is one provider's final tallies.
type ProviderReport struct {
	Provider         string
	Attempts         int
	Successes        int
	FailuresByKind   map[Outcome]int
	PromptTokens     int
	CompletionTokens int
	WallTime         time.Duration
	Retries          int
}

// SuccessRate returns successes/attempts, or 0 when there were no attempts.
func (p ProviderReport) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

// Report is the final run summary emitted at scheduler shutdown.
type Report struct {
	Providers []ProviderReport
}

// Report snapshots the current counters into a stable, sorted Report.
func (a *Aggregator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := Report{Providers: make([]ProviderReport, 0, len(names))}
	for _, name := range names {
		pc := a.providers[name]
		failures := make(map[Outcome]int, len(pc.failuresByKind))
		for k, v := range pc.failuresByKind {
			failures[k] = v
		}
		out.Providers = append(out.Providers, ProviderReport{
			Provider:         name,
			Attempts:         pc.attempts,
			Successes:        pc.successes,
			FailuresByKind:   failures,
			PromptTokens:     pc.promptTokens,
			CompletionTokens: pc.completionTokens,
			WallTime:         pc.wallTime,
			Retries:          pc.retries,
		})
	}
	return out
}

// String renders a human-readable summary table.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString("Usage report:\n")
	for _, p := range r.Providers {
		fmt.Fprintf(&b, "  %-12s attempts=%-4d successes=%-4d rate=%.0f%% tokens(in=%d out=%d) wall=%s retries=%d\n",
			p.Provider, p.Attempts, p.Successes, p.SuccessRate()*100,
			p.PromptTokens, p.CompletionTokens, p.WallTime.Round(time.Millisecond), p.Retries)
		if len(p.FailuresByKind) > 0 {
			kinds := make([]string, 0, len(p.FailuresByKind))
			for k := range p.FailuresByKind {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(&b, "      failures[%s]=%d\n", k, p.FailuresByKind[Outcome(k)])
			}
		}
	}
	return b.String()
}
