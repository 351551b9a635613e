package ccerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStrings(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "config error with field",
			err:  &ConfigError{Field: "providers", Message: "must not be empty"},
			want: "config: providers: must not be empty",
		},
		{
			name: "config error without field",
			err:  &ConfigError{Message: "no spec location set"},
			want: "config: no spec location set",
		},
		{
			name: "spec error with line",
			err:  &SpecError{Source: "openapi.yaml", Message: "invalid schema", Line: 42},
			want: `spec "openapi.yaml": invalid schema (line 42)`,
		},
		{
			name: "spec error without line",
			err:  &SpecError{Source: "openapi.yaml", Message: "not found"},
			want: `spec "openapi.yaml": not found`,
		},
		{
			name: "no provider configured",
			err:  &NoProviderConfiguredError{Endpoint: "GET /widgets"},
			want: `no healthy provider configured for endpoint "GET /widgets"`,
		},
		{
			name: "provider transport error",
			err:  &ProviderTransportError{Provider: "glm", Kind: RateLimited, HTTPStatus: 429, Cause: errors.New("too many requests")},
			want: "[glm] rate_limited transport error (http 429): too many requests",
		},
		{
			name: "provider fatal error",
			err:  &ProviderFatalError{Provider: "qwen", HTTPStatus: 401, Message: "bad api key"},
			want: "[qwen] fatal error (http 401): bad api key",
		},
		{
			name: "invalid output error",
			err:  &InvalidOutputError{Endpoint: "POST /widgets", Reason: "wrong test case count"},
			want: `invalid output for "POST /widgets": wrong test case count`,
		},
		{
			name: "validation error",
			err:  &ValidationError{Field: "priority", Reason: "unknown value"},
			want: `validation: field "priority": unknown value`,
		},
		{
			name: "state io error",
			err:  &StateIOError{Path: "/tmp/state.json", Cause: errors.New("permission denied")},
			want: "state io \"/tmp/state.json\": permission denied",
		},
		{
			name: "cancelled with stage",
			err:  &Cancelled{Stage: "retry backoff"},
			want: "cancelled during retry backoff",
		},
		{
			name: "cancelled without stage",
			err:  &Cancelled{},
			want: "cancelled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	transport := &ProviderTransportError{Provider: "glm", Kind: Transient, Cause: cause}
	assert.Same(t, cause, errors.Unwrap(transport))

	fatal := &ProviderFatalError{Provider: "glm", Cause: cause}
	assert.Same(t, cause, errors.Unwrap(fatal))

	stateIO := &StateIOError{Cause: cause}
	assert.Same(t, cause, errors.Unwrap(stateIO))
}

func TestIsRetryable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport rate limited", &ProviderTransportError{Kind: RateLimited}, true},
		{"transport transient", &ProviderTransportError{Kind: Transient}, true},
		{"transport timeout", &ProviderTransportError{Kind: Timeout}, true},
		{"fatal error", &ProviderFatalError{HTTPStatus: 400}, false},
		{"invalid output error", &InvalidOutputError{}, false},
		{"no provider configured", &NoProviderConfiguredError{}, false},
		{"cancelled", &Cancelled{}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
