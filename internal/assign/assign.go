// Package assign implements the four endpoint-to-provider assignment
// strategies from spec.md §4.7: round_robin, random, complexity, manual.
package assign

import (
	"fmt"
	"math/rand/v2"
	"path"
	"strings"

	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
)

// Strategy maps a filtered, document-ordered endpoint list to a parallel
// slice of primary provider names.
type Strategy interface {
	Assign(endpoints []spec.Endpoint) ([]string, error)
}

// RoundRobin assigns providers cyclically in document order:
// provider[i % len(providers)] for the i-th endpoint, per spec.md §8's
// invariant.
type RoundRobin struct {
	Providers []string
}

func (s RoundRobin) Assign(endpoints []spec.Endpoint) ([]string, error) {
	if len(s.Providers) == 0 {
		return nil, fmt.Errorf("round_robin: no providers configured")
	}
	out := make([]string, len(endpoints))
	for i := range endpoints {
		out[i] = s.Providers[i%len(s.Providers)]
	}
	return out, nil
}

// Random assigns a uniform-random provider per endpoint using a PRNG seeded
// for reproducibility. Per spec.md §4.7, the default seed derives from the
// endpoint count and the spec's fingerprint; Seed lets the operator override
// it explicitly.
type Random struct {
	Providers       []string
	Seed            uint64
	SpecFingerprint string
}

func (s Random) Assign(endpoints []spec.Endpoint) ([]string, error) {
	if len(s.Providers) == 0 {
		return nil, fmt.Errorf("random: no providers configured")
	}
	seed := s.Seed
	if seed == 0 {
		seed = deriveSeed(len(endpoints), s.SpecFingerprint)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	out := make([]string, len(endpoints))
	for i := range endpoints {
		out[i] = s.Providers[rng.IntN(len(s.Providers))]
	}
	return out, nil
}

// deriveSeed combines the endpoint count with a hash of the spec
// fingerprint string, so the same spec always reproduces the same random
// assignment while differing specs diverge.
func deriveSeed(endpointCount int, specFingerprint string) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	for i := 0; i < len(specFingerprint); i++ {
		h ^= uint64(specFingerprint[i])
		h *= 1099511628211
	}
	return h ^ uint64(endpointCount)
}

// Roles names the provider roles the complexity strategy dispatches to.
type Roles struct {
	Strongest string
	Fastest   string
	Balanced  string
}

// Complexity routes by ComplexityScore: score > 10 to the operator-tagged
// "strongest" provider, score <= 5 to "fastest", otherwise "balanced", per
// spec.md §4.7.
type Complexity struct {
	Roles Roles
}

func (s Complexity) Assign(endpoints []spec.Endpoint) ([]string, error) {
	out := make([]string, len(endpoints))
	for i := range endpoints {
		score := scoring.Score(&endpoints[i])
		switch {
		case score > 10:
			out[i] = s.Roles.Strongest
		case score <= 5:
			out[i] = s.Roles.Fastest
		default:
			out[i] = s.Roles.Balanced
		}
		if out[i] == "" {
			return nil, fmt.Errorf("complexity: no provider tagged for endpoint %q's tier", endpoints[i].Key())
		}
	}
	return out, nil
}

// Rule is one manual mapping entry: Pattern matches against
// "METHOD path" (method optionally "*" for any), first match wins.
type Rule struct {
	Pattern  string
	Provider string
}

// Manual applies a declarative, first-match-wins pattern:provider mapping.
// A wildcard fallback rule ("*" or "* *") is required whenever the rule set
// does not cover every endpoint, per spec.md §4.7.
type Manual struct {
	Rules []Rule
}

func (s Manual) Assign(endpoints []spec.Endpoint) ([]string, error) {
	out := make([]string, len(endpoints))
	for i, e := range endpoints {
		provider, ok := s.match(e)
		if !ok {
			return nil, fmt.Errorf("manual: no rule (including no wildcard fallback) matches endpoint %q", e.Key())
		}
		out[i] = provider
	}
	return out, nil
}

func (s Manual) match(e spec.Endpoint) (string, bool) {
	candidate := string(e.Method) + " " + e.Path
	for _, r := range s.Rules {
		if matchesPattern(r.Pattern, candidate, e) {
			return r.Provider, true
		}
	}
	return "", false
}

// matchesPattern supports a bare "*" wildcard, a method-only pattern
// ("POST *"), a path-only pattern (a glob with no space), or a
// "METHOD pathglob" pair.
func matchesPattern(pattern, candidate string, e spec.Endpoint) bool {
	if pattern == "*" {
		return true
	}
	parts := strings.SplitN(pattern, " ", 2)
	if len(parts) == 1 {
		ok, _ := path.Match(parts[0], e.Path)
		return ok
	}
	method, pathGlob := parts[0], parts[1]
	if method != "*" && !strings.EqualFold(method, string(e.Method)) {
		return false
	}
	if pathGlob == "*" {
		return true
	}
	ok, _ := path.Match(pathGlob, e.Path)
	_ = candidate
	return ok
}
