package glm

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Devliang24/casecraft/internal/ccerrors"
)

func TestNewDefaultsBaseURL(t *testing.T) {
	p := New(Config{APIKey: "key"}, nil)
	assert.Equal(t, "glm", p.Name())
	assert.Equal(t, 1, p.MaxWorkers())
}

func TestMapErrorTable(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		msg       string
		wantFatal bool
		wantKind  ccerrors.TransportKind
	}{
		{"401 unauthorized is fatal", http.StatusUnauthorized, "invalid key", true, ""},
		{"403 forbidden is fatal", http.StatusForbidden, "access denied", true, ""},
		{"429 rate limited is retryable", http.StatusTooManyRequests, "slow down", false, ccerrors.RateLimited},
		{"400 plain bad request is fatal", http.StatusBadRequest, "missing field", true, ""},
		{"400 quota exceeded is still fatal", http.StatusBadRequest, "Quota exceeded for this key", true, ""},
		{"400 credit exhausted is still fatal", http.StatusBadRequest, "insufficient credit balance", true, ""},
		{"503 service unavailable is retryable", http.StatusServiceUnavailable, "overloaded", false, ccerrors.Transient},
		{"502 bad gateway is retryable", http.StatusBadGateway, "upstream down", false, ccerrors.Transient},
		{"529 overloaded is retryable", 529, "overloaded", false, ccerrors.Transient},
		{"500 internal error is retryable", http.StatusInternalServerError, "boom", false, ccerrors.Transient},
		{"404 not found is fatal", http.StatusNotFound, "unknown route", true, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapError(tc.status, tc.msg)
			if tc.wantFatal {
				fatal, ok := err.(*ccerrors.ProviderFatalError)
				assert.True(t, ok, "expected fatal error, got %T", err)
				if ok {
					assert.Equal(t, "glm", fatal.Provider)
					assert.Equal(t, tc.status, fatal.HTTPStatus)
				}
				return
			}
			transport, ok := err.(*ccerrors.ProviderTransportError)
			assert.True(t, ok, "expected transport error, got %T", err)
			if ok {
				assert.Equal(t, tc.wantKind, transport.Kind)
			}
		})
	}
}

func TestMapErrorTagsQuotaMessageDistinctly(t *testing.T) {
	err := mapError(http.StatusBadRequest, "monthly quota exceeded")
	fatal, ok := err.(*ccerrors.ProviderFatalError)
	if ok {
		assert.Contains(t, fatal.Message, "quota exceeded")
	} else {
		t.Fatalf("expected *ccerrors.ProviderFatalError, got %T", err)
	}
}
