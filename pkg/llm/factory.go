package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// ClientFactory builds provider clients from a user's decrypted AI settings.
// Use the interface for dependency injection and testing.
type ClientFactory interface {
	CreateForSettings(settings *models.AISettings) (ChatClient, error)
}

type clientFactory struct {
	logger *zap.Logger
}

// NewClientFactory creates a new factory.
func NewClientFactory(logger *zap.Logger) ClientFactory {
	return &clientFactory{logger: logger}
}

var _ ClientFactory = (*clientFactory)(nil)

// CreateForSettings returns the adapter matching the configured provider.
func (f *clientFactory) CreateForSettings(settings *models.AISettings) (ChatClient, error) {
	switch settings.Provider {
	case models.ProviderOpenAI:
		return NewOpenAIClient(settings.APIKey, settings.ModelEndpoint, settings.ModelName, f.logger)
	case models.ProviderAzureFoundry:
		return NewAzureFoundryClient(settings.APIKey, settings.ModelEndpoint, settings.ModelName, f.logger)
	case models.ProviderAnthropic:
		return NewAnthropicClient(settings.APIKey, settings.ModelName, f.logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", settings.Provider)
	}
}
