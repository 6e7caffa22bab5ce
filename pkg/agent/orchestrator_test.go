package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/llm"
	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/retrievers"
)

// newTestOrchestrator builds an orchestrator whose assembler never touches
// the database: the settings deny every retriever so selection is empty.
func newTestOrchestrator(t *testing.T, factory llm.ClientFactory) *Orchestrator {
	t.Helper()

	composer, err := NewComposer()
	require.NoError(t, err)

	return NewOrchestrator(
		NewAnalyzer(zap.NewNop()),
		NewAssembler(nil, zap.NewNop()),
		composer,
		factory,
		Defaults{Temperature: 0.4, MaxTokens: 1024},
		zap.NewNop(),
	)
}

func denyAllSettings() *models.AISettings {
	access := make(map[string]bool, len(retrievers.KnownKeys))
	for _, key := range retrievers.KnownKeys {
		access[key] = false
	}
	return &models.AISettings{
		Enabled:        true,
		Provider:       models.ProviderOpenAI,
		APIKey:         "sk-test",
		ModelName:      "gpt-4o-mini",
		EnableFallback: true,
		DataAccess:     access,
	}
}

func TestProcess_Success(t *testing.T) {
	client := &llm.MockChatClient{Response: "Here is what your data shows."}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	result, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: denyAllSettings(),
	})

	require.NoError(t, err)
	assert.Equal(t, "Here is what your data shows.", result.Content)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, models.IntentGeneralAdvice, result.Metadata.Intent)
	assert.Equal(t, confidenceBase, result.Metadata.Confidence)
	assert.Equal(t, 1, client.CallCount())
}

func TestProcess_ProviderFailureUsesFallback(t *testing.T) {
	client := &llm.MockChatClient{Err: errors.New("connection refused")}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	result, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: denyAllSettings(),
	})

	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, FallbackConfidence, result.Metadata.Confidence)
	assert.NotEmpty(t, result.Content)
	// Exactly one attempt, no retries.
	assert.Equal(t, 1, client.CallCount())
}

func TestProcess_StreamingClientUsesStreamingCall(t *testing.T) {
	client := &llm.MockStreamingChatClient{
		MockChatClient: llm.MockChatClient{Response: "streamed answer"},
	}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	result, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: denyAllSettings(),
	})

	require.NoError(t, err)
	assert.Equal(t, "streamed answer", result.Content)
	assert.Equal(t, 1, client.StreamCalls)
	assert.Equal(t, 1, client.CallCount())
}

func TestProcess_StreamingClientFailureStillFallsBack(t *testing.T) {
	client := &llm.MockStreamingChatClient{
		MockChatClient: llm.MockChatClient{Err: errors.New("connection reset")},
	}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	result, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: denyAllSettings(),
	})

	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 1, client.StreamCalls)
}

func TestProcess_FallbackDisabledPropagatesError(t *testing.T) {
	client := &llm.MockChatClient{Err: errors.New("connection refused")}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	settings := denyAllSettings()
	settings.EnableFallback = false

	result, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: settings,
	})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestProcess_FactoryErrorWithFallback(t *testing.T) {
	o := newTestOrchestrator(t, &llm.MockClientFactory{Err: errors.New("unsupported provider")})

	result, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: denyAllSettings(),
	})

	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
}

func TestProcess_SettingsOverrideDefaults(t *testing.T) {
	client := &llm.MockChatClient{Response: "ok"}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	settings := denyAllSettings()
	settings.Temperature = 0.9
	settings.MaxTokens = 256

	_, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: settings,
	})

	require.NoError(t, err)
	require.Len(t, client.Calls, 1)
	assert.Equal(t, 0.9, client.Calls[0].Opts.Temperature)
	assert.Equal(t, 256, client.Calls[0].Opts.MaxTokens)
}

func TestProcess_DefaultsFillUnsetFields(t *testing.T) {
	client := &llm.MockChatClient{Response: "ok"}
	o := newTestOrchestrator(t, &llm.MockClientFactory{Client: client})

	_, err := o.Process(context.Background(), "how are my finances?", "user-1", ProcessOptions{
		Settings: denyAllSettings(),
	})

	require.NoError(t, err)
	require.Len(t, client.Calls, 1)
	assert.Equal(t, 0.4, client.Calls[0].Opts.Temperature)
	assert.Equal(t, 1024, client.Calls[0].Opts.MaxTokens)
}

func TestConfidence(t *testing.T) {
	stubbed := &models.RetrievedData{Source: "budgets", Stubbed: true}
	plain := &models.RetrievedData{Source: "transactions"}

	t.Run("full context", func(t *testing.T) {
		assembled := &models.AssembledContext{
			RelevantData: []*models.RetrievedData{plain},
			Metadata:     models.ContextMetadata{RetrieversUsed: []string{"transactions"}},
		}
		assert.InDelta(t, 0.9, confidence([]string{"transactions"}, assembled), 1e-9)
	})

	t.Run("one stubbed", func(t *testing.T) {
		assembled := &models.AssembledContext{
			RelevantData: []*models.RetrievedData{plain, stubbed},
			Metadata:     models.ContextMetadata{RetrieversUsed: []string{"transactions", "budgets"}},
		}
		assert.InDelta(t, 0.83, confidence([]string{"transactions", "budgets"}, assembled), 1e-9)
	})

	t.Run("one dropped", func(t *testing.T) {
		assembled := &models.AssembledContext{
			RelevantData: []*models.RetrievedData{plain},
			Metadata:     models.ContextMetadata{RetrieversUsed: []string{"transactions"}},
		}
		assert.InDelta(t, 0.78, confidence([]string{"transactions", "budgets"}, assembled), 1e-9)
	})

	t.Run("floor", func(t *testing.T) {
		assembled := &models.AssembledContext{
			Metadata: models.ContextMetadata{RetrieversUsed: nil},
		}
		selected := []string{"a", "b", "c", "d", "e", "f"}
		assert.InDelta(t, confidenceFloor, confidence(selected, assembled), 1e-9)
	})
}
