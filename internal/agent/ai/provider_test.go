package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit code", &ProviderError{Code: "rate_limit_exceeded"}, true},
		{"overloaded type", &ProviderError{Type: "overloaded_error", Message: "overloaded"}, true},
		{"server error code", &ProviderError{Code: "server_error", Message: "boom"}, true},
		{"auth code", &ProviderError{Code: "authentication_error", Message: "bad key"}, false},
		{"invalid request", &ProviderError{Type: "invalid_request_error", Message: "bad input"}, false},
		{"timeout text", errors.New("context deadline exceeded"), true},
		{"429 text", errors.New("unexpected status 429 Too Many Requests"), true},
		{"503 text", &ProviderError{Message: "upstream returned 503"}, true},
		{"401 text", errors.New("401 unauthorized"), false},
		{"plain failure", errors.New("model exploded"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(tc.err), tc.name)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Code: "server_error", Message: "upstream failed"}
	assert.Equal(t, "upstream failed", err.Error())
}
