package artifact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Devliang24/casecraft/internal/ccerrors"
	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
)

// Parse decodes a provider's raw JSON response into []TestCase, rejecting
// anything that is not a top-level array, per spec.md §4.9.
func Parse(raw string) ([]TestCase, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &ccerrors.ValidationError{Field: "$", Reason: "top-level output is not a JSON array"}
	}
	var cases []TestCase
	if err := json.Unmarshal([]byte(trimmed), &cases); err != nil {
		return nil, &ccerrors.ValidationError{Field: "$", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return cases, nil
}

// Validate enforces spec.md §4.9's structural and budget contract against
// cases generated for endpoint e under budget. Returns an
// *ccerrors.InvalidOutputError naming the first violation found; callers
// use this to drive the retry-with-correction-suffix loop.
func Validate(cases []TestCase, e *spec.Endpoint, budget scoring.Budget) error {
	endpointKey := e.Key()

	if len(cases) == 0 {
		return invalid(endpointKey, "output contains zero test cases")
	}

	counts := map[TestType]int{}
	for i, c := range cases {
		if err := validateOne(i, c, e); err != nil {
			return invalid(endpointKey, err.Error())
		}
		counts[c.TestType]++
	}

	if err := validateCount("positive", counts[TypePositive], budget.Positive); err != nil {
		return invalid(endpointKey, err.Error())
	}
	if err := validateCount("negative", counts[TypeNegative], budget.Negative); err != nil {
		return invalid(endpointKey, err.Error())
	}
	if err := validateCount("boundary", counts[TypeBoundary], budget.Boundary); err != nil {
		return invalid(endpointKey, err.Error())
	}

	return nil
}

func invalid(endpoint, reason string) error {
	return &ccerrors.InvalidOutputError{Endpoint: endpoint, Reason: reason}
}

func validateCount(label string, got, want int) error {
	if got < want-1 || got > want+1 {
		return fmt.Errorf("%s count %d outside budget %d ± 1", label, got, want)
	}
	return nil
}

func validateOne(i int, c TestCase, e *spec.Endpoint) error {
	switch c.Priority {
	case P0, P1, P2:
	default:
		return fmt.Errorf("case %d: priority %q is not one of P0, P1, P2", i, c.Priority)
	}
	switch c.TestType {
	case TypePositive, TypeNegative, TypeBoundary:
	default:
		return fmt.Errorf("case %d: test_type %q is not one of positive, negative, boundary", i, c.TestType)
	}
	if !strings.EqualFold(c.Method, string(e.Method)) {
		return fmt.Errorf("case %d: method %q does not match endpoint method %q", i, c.Method, e.Method)
	}
	if c.Path != e.Path {
		return fmt.Errorf("case %d: path %q does not match endpoint path %q", i, c.Path, e.Path)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("case %d: name is empty", i)
	}
	if c.ExpectedStatus == 0 {
		return fmt.Errorf("case %d: expected_status is missing", i)
	}
	return nil
}
