// Package artifact validates LLM-generated test cases against the schema
// contract in spec.md §6 and writes them to deterministic on-disk paths.
package artifact

import "time"

// Priority is a test case's importance band.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
)

// TestType classifies why a test case exists.
type TestType string

const (
	TypePositive TestType = "positive"
	TypeNegative TestType = "negative"
	TypeBoundary TestType = "boundary"
)

// Metadata is stamped onto every test case at write time, not generated by
// the model.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	APIVersion  string    `json:"api_version"`
	LLMModel    string    `json:"llm_model"`
	LLMProvider string    `json:"llm_provider"`
}

// TestCase is one generated artifact entry, per spec.md §6.
type TestCase struct {
	Name                   string            `json:"name"`
	Description            string            `json:"description"`
	Priority               Priority          `json:"priority"`
	Method                 string            `json:"method"`
	Path                   string            `json:"path"`
	Headers                map[string]string `json:"headers"`
	QueryParams            map[string]any    `json:"query_params"`
	Body                   any               `json:"body"`
	ExpectedStatus         int               `json:"expected_status"`
	ExpectedResponseSchema any               `json:"expected_response_schema"`
	TestType               TestType          `json:"test_type"`
	Tags                   []string          `json:"tags"`
	Metadata               Metadata          `json:"metadata"`
}
