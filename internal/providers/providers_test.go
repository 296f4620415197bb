package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"openai style", "https://api.minimax.io/v1/chat/completions", "https://api.minimax.io/anthropic"},
		{"anthropic v1", "https://api.minimax.io/anthropic/v1", "https://api.minimax.io/anthropic"},
		{"full messages path", "https://api.minimax.io/anthropic/v1/messages", "https://api.minimax.io/anthropic"},
		{"trailing slash", "https://api.minimax.io/anthropic/", "https://api.minimax.io/anthropic"},
		{"host only", "https://api.minimax.io", "https://api.minimax.io/anthropic"},
		{"china host", "https://api.minimaxi.com", "https://api.minimaxi.com/anthropic"},
		{"already normalized", "https://api.minimax.io/anthropic", "https://api.minimax.io/anthropic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBaseURL(tt.in))
		})
	}
}

func TestNormalizeBaseURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://api.minimax.io/v1/chat/completions",
		"https://api.minimax.io/anthropic/v1",
		"https://api.minimax.io/anthropic/v1/messages",
		"https://api.minimax.io/anthropic/",
		"https://api.minimax.io",
	}
	for _, in := range inputs {
		once := NormalizeBaseURL(in)
		assert.Equal(t, once, NormalizeBaseURL(once), "input %q", in)
	}
}

func TestContextWindowTable(t *testing.T) {
	assert.Equal(t, 262_144, ContextWindowFor("qwen3-max"))
	assert.Equal(t, 1_000_000, ContextWindowFor("qwen-plus"))
	assert.Equal(t, 245_760, ContextWindowFor("MiniMax-M2.5"))
	assert.Equal(t, 4_000_000, ContextWindowFor("MiniMax-Text-01"))
	assert.Equal(t, 200_000, ContextWindowFor("claude-sonnet-4-20250514"))
	assert.Equal(t, 32_768, ContextWindowFor("some-unknown-model"))
}

func TestMapHTTPStatus(t *testing.T) {
	assert.Equal(t, KindAuthenticationFailed, MapHTTPStatus("x", 401, "").Kind)
	assert.Equal(t, KindAuthenticationFailed, MapHTTPStatus("x", 400, "authentication failed").Kind)
	assert.Equal(t, KindRateLimited, MapHTTPStatus("x", 429, "").Kind)
	assert.Equal(t, KindModelNotFound, MapHTTPStatus("x", 404, "").Kind)
	assert.Equal(t, KindInvalidRequest, MapHTTPStatus("x", 422, "").Kind)
	assert.Equal(t, KindServerError, MapHTTPStatus("x", 503, "").Kind)
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, KindRateLimited.IsRetryable())
	assert.True(t, KindNetworkError.IsRetryable())
	assert.True(t, KindServerError.IsRetryable())
	assert.True(t, KindProviderUnavailable.IsRetryable())
	assert.False(t, KindAuthenticationFailed.IsRetryable())
	assert.False(t, KindInvalidRequest.IsRetryable())
	assert.False(t, KindCancelled.IsRetryable())
}

func TestCoreErrorMessageNamesComponent(t *testing.T) {
	err := &CoreError{Kind: KindRateLimited, Component: "minimax", Message: "slow down"}
	assert.Contains(t, err.Error(), "minimax:")
	assert.Contains(t, err.Error(), "slow down")
}

func TestProviderFactoryRejectsUnknownKind(t *testing.T) {
	_, err := New(models.ProviderConfig{Kind: "mystery", Model: "x"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfig, KindOf(err))
}

func TestCapabilitiesDeclareReliability(t *testing.T) {
	caps := Capabilities()
	byKind := map[models.ProviderKind]Capability{}
	for _, c := range caps {
		byKind[c.Kind] = c
	}
	assert.Equal(t, models.ReliabilityReliable, byKind[models.ProviderAnthropic].ToolCallReliability)
	assert.Equal(t, models.ReliabilityUnreliable, byKind[models.ProviderDashScope].ToolCallReliability)
	assert.Equal(t, models.ReliabilityNone, byKind[models.ProviderOllama].ToolCallReliability)
	assert.Equal(t, models.FallbackOff, byKind[models.ProviderAnthropic].DefaultFallbackMode)
	assert.Equal(t, models.FallbackSoft, byKind[models.ProviderOllama].DefaultFallbackMode)
}
