package authprofiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorJSON(t *testing.T, e *Error) map[string]any {
	t.Helper()
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err       *Error
		name      string
		code      Code
		retryable bool
		status    int
	}{
		{NewAuthenticationError("anthropic", ""), "AuthenticationError", CodeAuthFailed, true, 401},
		{NewBillingError("anthropic", "p1"), "BillingError", CodeBilling, true, 402},
		{NewRateLimitError("anthropic", 30), "RateLimitError", CodeRateLimit, true, 429},
		{NewContextOverflowError(300000, 200000), "ContextOverflowError", CodeContextOverflow, true, 413},
		{NewCompactionFailureError("s1"), "CompactionFailureError", CodeCompactionFailed, false, 500},
		{NewTimeoutError(30000), "TimeoutError", CodeTimeout, true, 408},
		{NewFormatError("bad json"), "FormatError", CodeInvalidFormat, false, 400},
		{NewModelNotSupportedError("gpt-9", "openai"), "ModelNotSupportedError", CodeModelNotSupported, false, 400},
		{NewSessionNotFoundError("s2"), "SessionNotFoundError", CodeSessionNotFound, false, 404},
		{NewFailoverError(ReasonRateLimit, "anthropic", "claude", ""), "FailoverError", CodeFailover, true, 429},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.err.Name())
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)

			m := errorJSON(t, tt.err)
			assert.Equal(t, tt.name, m["name"])
			assert.Equal(t, string(tt.code), m["code"])
			assert.Equal(t, tt.err.Message, m["message"])
			assert.Equal(t, tt.retryable, m["retryable"])
			assert.EqualValues(t, tt.status, m["httpStatus"])
			assert.NotContains(t, m, "cause")
		})
	}
}

func TestErrorJSONFields(t *testing.T) {
	m := errorJSON(t, NewAuthenticationError("anthropic", "p1"))
	assert.Equal(t, "anthropic", m["provider"])
	assert.Equal(t, "p1", m["profileId"])

	m = errorJSON(t, NewAuthenticationError("anthropic", ""))
	assert.NotContains(t, m, "profileId")

	m = errorJSON(t, NewRateLimitError("openai", 12))
	assert.EqualValues(t, 12, m["retryAfterSeconds"])

	m = errorJSON(t, NewContextOverflowError(10, 5))
	assert.EqualValues(t, 10, m["currentTokens"])
	assert.EqualValues(t, 5, m["maxTokens"])

	m = errorJSON(t, NewModelNotSupportedError("m", "p"))
	assert.Equal(t, "m", m["model"])
	assert.Equal(t, "p", m["provider"])

	m = errorJSON(t, NewTimeoutError(1500))
	assert.EqualValues(t, 1500, m["timeoutMs"])

	m = errorJSON(t, NewSessionNotFoundError("s"))
	assert.Equal(t, "s", m["sessionId"])
}

func TestFailoverErrorJSON(t *testing.T) {
	e := NewFailoverError(ReasonContextOverflow, "anthropic", "claude-x", "p1").WithCause(errors.New("prompt is too long"))
	m := errorJSON(t, e)
	assert.Equal(t, "context_overflow", m["reason"])
	assert.Equal(t, "anthropic", m["provider"])
	assert.Equal(t, "claude-x", m["model"])
	assert.Equal(t, "p1", m["profileId"])
	assert.Equal(t, false, m["shouldRotateProfile"])
	assert.Equal(t, true, m["shouldFallbackModel"])
	assert.EqualValues(t, 413, m["httpStatus"])
	assert.Equal(t, "prompt is too long", m["cause"])
}

func TestErrorCauseChain(t *testing.T) {
	root := errors.New("connection reset")
	e := NewTimeoutError(100).WithCause(root)
	assert.Equal(t, "request timed out after 100ms: connection reset", e.Error())
	assert.ErrorIs(t, e, root)

	wrapped := fmt.Errorf("calling provider: %w", e)
	assert.True(t, IsCode(wrapped, CodeTimeout))
	assert.False(t, IsCode(wrapped, CodeAuthFailed))

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, e, got)

	_, ok = AsError(root)
	assert.False(t, ok)
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, "", e.Error())
	assert.Nil(t, e.Unwrap())
}
