// Package prompt assembles the provider-neutral system preamble and task
// body CaseCraft sends to an LLM for one endpoint, per spec.md §4.4.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
)

// AuthPlaceholders is the fixed lexicon prompts instruct the model to use
// in place of real credentials, per spec.md §4.4. Order is the order they
// are presented to the model, not significant otherwise.
var AuthPlaceholders = []string{
	"${AUTH_TOKEN}",
	"${USER_TOKEN}",
	"${ADMIN_TOKEN}",
	"${API_KEY}",
	"${BASIC_CREDENTIALS}",
	"${INVALID_TOKEN}",
	"${INVALID_API_KEY}",
}

// SystemPreamble fixes the output contract every provider is held to: the
// JSON test-case array shape from spec.md §6. It does not vary per
// endpoint, so it is a package-level constant rather than a template.
const SystemPreamble = `You are CaseCraft's test-case generation engine. Given one HTTP API endpoint
and a budget of required test cases, emit a JSON array of test-case objects
and nothing else — no prose, no markdown fences.

Each object has exactly these fields:
  name (string), description (string), priority ("P0"|"P1"|"P2"),
  method (string), path (string), headers (object of string:string),
  query_params (object), body (any or null), expected_status (integer),
  expected_response_schema (object or null), test_type
  ("positive"|"negative"|"boundary"), tags (array of string).

Emit cases in importance order within each test_type: the most
representative case of that type first, the most marginal last.

When a case needs an authentication credential, use exactly one of these
placeholders verbatim — never invent a real-looking token:
  ${AUTH_TOKEN} ${USER_TOKEN} ${ADMIN_TOKEN} ${API_KEY}
  ${BASIC_CREDENTIALS} ${INVALID_TOKEN} ${INVALID_API_KEY}`

// Build assembles the system preamble and the endpoint-specific task body.
// Build is deterministic: identical (e, budget) inputs always produce
// identical output, since spec.md §4.4 requires reproducible prompts.
func Build(e *spec.Endpoint, budget scoring.Budget) (systemPrompt, taskPrompt string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Endpoint: %s %s\n", e.Method, e.Path)
	if e.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", e.Summary)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
	}

	writeParameters(&b, e.Parameters)
	writeSchema(&b, "Request body schema", e.RequestBody)
	writeResponses(&b, e.Responses)

	if e.AuthRequired {
		fmt.Fprintf(&b, "Authentication: required (%s)\n", e.AuthScheme)
	} else {
		b.WriteString("Authentication: none\n")
	}

	fmt.Fprintf(&b, "\nBudget: %d positive, %d negative, %d boundary (total %d).\n",
		budget.Positive, budget.Negative, budget.Boundary, budget.Total())
	fmt.Fprintf(&b, "Priority split across the total: %d P0, %d P1, %d P2.\n",
		budget.P0, budget.P1, budget.P2)

	return SystemPreamble, b.String()
}

// CorrectionSuffix is appended to the task prompt on a retry-on-invalid-
// output attempt, per spec.md §4.8.
func CorrectionSuffix(reason string) string {
	return fmt.Sprintf("\nYour previous output violated the contract: %s. Re-emit a corrected JSON array that fully satisfies the budget and field requirements above.", reason)
}

func writeParameters(b *strings.Builder, params []spec.Parameter) {
	if len(params) == 0 {
		return
	}
	sorted := append([]spec.Parameter(nil), params...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].In != sorted[j].In {
			return sorted[i].In < sorted[j].In
		}
		return sorted[i].Name < sorted[j].Name
	})
	b.WriteString("Parameters:\n")
	for _, p := range sorted {
		req := "optional"
		if p.Required {
			req = "required"
		}
		typ := "unknown"
		if p.Schema != nil && p.Schema.Type != "" {
			typ = p.Schema.Type
		}
		fmt.Fprintf(b, "  - %s (in: %s, %s, type: %s)\n", p.Name, p.In, req, typ)
	}
}

func writeSchema(b *strings.Builder, label string, s *spec.Schema) {
	if s == nil {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, describeSchema(s, map[*spec.Schema]bool{}))
}

func writeResponses(b *strings.Builder, responses map[int]*spec.Schema) {
	if len(responses) == 0 {
		return
	}
	statuses := make([]int, 0, len(responses))
	for status := range responses {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	b.WriteString("Declared responses:\n")
	for _, status := range statuses {
		fmt.Fprintf(b, "  - %d: %s\n", status, describeSchema(responses[status], map[*spec.Schema]bool{}))
	}
}

func describeSchema(s *spec.Schema, seen map[*spec.Schema]bool) string {
	if s == nil {
		return "(none)"
	}
	if seen[s] {
		return "(cyclic reference)"
	}
	seen[s] = true
	defer delete(seen, s)

	switch s.Type {
	case "object":
		if len(s.Properties) == 0 {
			return "object"
		}
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		return "object{" + strings.Join(names, ", ") + "}"
	case "array":
		return "array[" + describeSchema(s.Items, seen) + "]"
	case "":
		return "object"
	default:
		return s.Type
	}
}
