package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
)

func TestParseRejectsNonArrayTopLevel(t *testing.T) {
	_, err := Parse(`{"name": "not an array"}`)
	assert.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse(`[{"name": }]`)
	assert.Error(t, err)
}

func TestParseAcceptsWellFormedArray(t *testing.T) {
	cases, err := Parse(`[{"name": "case 1", "method": "GET", "path": "/x", "priority": "P0", "test_type": "positive", "expected_status": 200}]`)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "case 1", cases[0].Name)
}

func baseEndpoint() spec.Endpoint {
	return spec.Endpoint{Method: spec.MethodGet, Path: "/widgets"}
}

func validCase(testType TestType) TestCase {
	return TestCase{
		Name:           "a case",
		Priority:       P0,
		Method:         "GET",
		Path:           "/widgets",
		ExpectedStatus: 200,
		TestType:       testType,
	}
}

func TestValidateRejectsEmptyOutput(t *testing.T) {
	e := baseEndpoint()
	err := Validate(nil, &e, scoring.Budget{})
	assert.Error(t, err)
}

func TestValidateRejectsWrongMethod(t *testing.T) {
	e := baseEndpoint()
	c := validCase(TypePositive)
	c.Method = "POST"
	err := Validate([]TestCase{c}, &e, scoring.Budget{Positive: 1})
	assert.Error(t, err)
}

func TestValidateRejectsUnknownPriority(t *testing.T) {
	e := baseEndpoint()
	c := validCase(TypePositive)
	c.Priority = "P9"
	err := Validate([]TestCase{c}, &e, scoring.Budget{Positive: 1})
	assert.Error(t, err)
}

func TestValidateRejectsMissingExpectedStatus(t *testing.T) {
	e := baseEndpoint()
	c := validCase(TypePositive)
	c.ExpectedStatus = 0
	err := Validate([]TestCase{c}, &e, scoring.Budget{Positive: 1})
	assert.Error(t, err)
}

func TestValidateEnforcesCountWithinBudgetTolerance(t *testing.T) {
	e := baseEndpoint()
	budget := scoring.Budget{Positive: 2, Negative: 2, Boundary: 1}

	cases := []TestCase{
		validCase(TypePositive), validCase(TypePositive), validCase(TypePositive), // 3, within +/-1 of 2
		validCase(TypeNegative), validCase(TypeNegative),
		validCase(TypeBoundary),
	}
	assert.NoError(t, Validate(cases, &e, budget))
}

func TestValidateRejectsCountOutsideTolerance(t *testing.T) {
	e := baseEndpoint()
	budget := scoring.Budget{Positive: 2, Negative: 2, Boundary: 1}

	cases := []TestCase{
		validCase(TypePositive), validCase(TypePositive), validCase(TypePositive), validCase(TypePositive), validCase(TypePositive),
		validCase(TypeNegative), validCase(TypeNegative),
		validCase(TypeBoundary),
	}
	assert.Error(t, Validate(cases, &e, budget))
}
