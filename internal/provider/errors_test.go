package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorCategory{CategoryRateLimit, CategoryServer, CategoryTimeout, CategoryNetwork}
	for _, c := range retryable {
		assert.True(t, IsRetryable(c), c.String())
	}

	notRetryable := []ErrorCategory{CategoryAuth, CategoryInvalidArgument, CategoryNotFound,
		CategoryContentFilter, CategoryIO, CategoryParse, CategoryInvalidState,
		CategoryMissingCredentials, CategoryAgentNotFound, CategoryUnknown}
	for _, c := range notRetryable {
		assert.False(t, IsRetryable(c), c.String())
	}
}

func TestRetryDelay_UsesSuggestedWhenPresent(t *testing.T) {
	d := RetryDelay(3, 2*time.Second)
	assert.Equal(t, 2*time.Second, d)
}

func TestRetryDelay_ExponentialBackoffWhenNoneSuggested(t *testing.T) {
	d1 := RetryDelay(1, -1)
	d2 := RetryDelay(2, -1)
	d3 := RetryDelay(3, -1)

	assert.True(t, d1 >= time.Second && d1 < 2*time.Second)
	assert.True(t, d2 >= 2*time.Second && d2 < 3*time.Second)
	assert.True(t, d3 >= 4*time.Second && d3 < 5*time.Second)
}

func TestProviderError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	pe := &ProviderError{Category: CategoryServer, Provider: "anthropic", Message: "bad", Cause: cause}

	assert.Contains(t, pe.Error(), "anthropic")
	assert.Contains(t, pe.Error(), "boom")
	assert.Equal(t, cause, errors.Unwrap(pe))
}

func TestUserMessage_AuthTemplatesEnvVar(t *testing.T) {
	msg := UserMessage(CategoryAuth, "openai", "OPENAI_API_KEY", "")
	assert.Contains(t, msg, "openai")
	assert.Contains(t, msg, "OPENAI_API_KEY")
}

func TestUserMessage_MissingCredentials(t *testing.T) {
	msg := UserMessage(CategoryMissingCredentials, "google", "GOOGLE_API_KEY", "")
	assert.Contains(t, msg, "GOOGLE_API_KEY")
}

func TestErrorCategory_String(t *testing.T) {
	assert.Equal(t, "rate-limit", CategoryRateLimit.String())
	assert.Equal(t, "missing-credentials", CategoryMissingCredentials.String())
	assert.Equal(t, "unknown", ErrorCategory(999).String())
}
