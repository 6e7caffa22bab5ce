package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"nil error", nil, "", false},
		{"401 status", errors.New("request failed with status 401"), ErrorTypeAuth, false},
		{"invalid api key", errors.New("Invalid API key provided"), ErrorTypeAuth, false},
		{"model not found", errors.New("the model 'gpt-5-turbo' does not exist"), ErrorTypeModel, false},
		{"404 endpoint", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"429 quota", errors.New("429 Too Many Requests"), ErrorTypeQuota, true},
		{"rate limit wording", errors.New("provider rate limit hit"), ErrorTypeQuota, true},
		{"empty response", ErrEmptyResponse, ErrorTypeEmpty, false},
		{"503 server", errors.New("503 Service Unavailable"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			if tt.err == nil {
				assert.Nil(t, classified)
				return
			}
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.retryable, classified.Retryable)
		})
	}
}

func TestClassifyError_PreservesStructuredError(t *testing.T) {
	original := NewError(ErrorTypeQuota, "quota", true, nil)
	wrapped := fmt.Errorf("call failed: %w", original)

	assert.Same(t, original, ClassifyError(wrapped))
}

func TestClassifyError_ExtractsStatusCode(t *testing.T) {
	classified := ClassifyError(errors.New("request failed with status 429"))
	assert.Equal(t, 429, classified.StatusCode)
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrorTypeEndpoint, "wrapped", true, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeQuota, GetErrorType(NewError(ErrorTypeQuota, "q", true, nil)))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}
