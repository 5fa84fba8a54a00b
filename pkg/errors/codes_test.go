package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	allCodes := []ErrorCode{
		ErrFormat,
		ErrServiceUnreachable,
		ErrModelUnavailable,
		ErrInferenceTimeout,
		ErrInference,
		ErrContextCancelled,
	}

	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code, "Registry entry should have matching code")
			assert.NotEmpty(t, info.Description, "Description should not be empty")
			assert.NotEmpty(t, info.SuggestedAction, "SuggestedAction should not be empty")
		})
	}
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{ErrFormat, false},
		{ErrServiceUnreachable, true},
		{ErrModelUnavailable, false},
		{ErrInferenceTimeout, true},
		{ErrInference, false},
		{ErrContextCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.code),
				"IsRetryable(%s) should be %v", tt.code, tt.expected)
		})
	}
}

func TestGetSuggestedAction(t *testing.T) {
	for code := range ErrorCodeRegistry {
		action := GetSuggestedAction(code)
		assert.NotEmpty(t, action, "Code %s should have a suggested action", code)
		assert.True(t, len(action) > 15, "Action for %s should be meaningful (>15 chars): %s", code, action)
	}

	action := GetSuggestedAction("unknown_code")
	assert.Contains(t, action, "run log", "Unknown codes should suggest checking the run log")
}

func TestGetSuggestedAction_NamesRemedy(t *testing.T) {
	assert.Contains(t, GetSuggestedAction(ErrServiceUnreachable), "ollama serve")
	assert.Contains(t, GetSuggestedAction(ErrModelUnavailable), "models pull")
}

func TestGetDescription(t *testing.T) {
	for code := range ErrorCodeRegistry {
		assert.NotEmpty(t, GetDescription(code), "Code %s should have a description", code)
	}

	assert.Equal(t, "Unknown error", GetDescription("unknown_code"))
}
