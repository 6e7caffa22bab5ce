package models

import (
	"time"
)

// Provider identifies which external model provider backs a user's assistant.
type Provider string

const (
	ProviderAzureFoundry Provider = "azure_foundry"
	ProviderOpenAI       Provider = "openai"
	ProviderAnthropic    Provider = "anthropic"
)

// ValidProviders contains all supported provider values.
var ValidProviders = []Provider{
	ProviderAzureFoundry,
	ProviderOpenAI,
	ProviderAnthropic,
}

// IsValidProvider checks if the given provider is supported.
func IsValidProvider(p Provider) bool {
	for _, v := range ValidProviders {
		if v == p {
			return true
		}
	}
	return false
}

// AISettings represents a user's AI configuration (decrypted form).
// This is the in-memory representation - the API key is decrypted.
// The agent core treats these settings as read-only.
type AISettings struct {
	UserID string `json:"user_id"`

	Enabled  bool     `json:"enabled"`
	Provider Provider `json:"provider"`

	// Model settings
	APIKey        string  `json:"api_key,omitempty"` // Decrypted
	ModelEndpoint string  `json:"model_endpoint,omitempty"`
	ModelName     string  `json:"model_name,omitempty"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`

	// Retrieval settings
	EnableCRAG         bool    `json:"enable_crag"`
	EnableFallback     bool    `json:"enable_fallback"`
	RelevanceThreshold float64 `json:"relevance_threshold"`
	MaxRetrievalDocs   int     `json:"max_retrieval_docs"`

	// DataAccess maps a retriever key to whether the assistant may read
	// that data domain. A key that is absent defaults to allowed; only an
	// explicit false blocks a retriever.
	DataAccess map[string]bool `json:"data_access,omitempty"`

	// Privacy flags
	AnonymizeVendors           bool `json:"anonymize_vendors"`
	ExcludeSensitiveCategories bool `json:"exclude_sensitive_categories"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AISettingsStored is the database storage format with the encrypted key.
type AISettingsStored struct {
	Enabled                    bool            `json:"enabled"`
	Provider                   string          `json:"provider"`
	APIKeyEncrypted            string          `json:"api_key_encrypted,omitempty"`
	ModelEndpoint              string          `json:"model_endpoint,omitempty"`
	ModelName                  string          `json:"model_name,omitempty"`
	Temperature                float64         `json:"temperature"`
	MaxTokens                  int             `json:"max_tokens"`
	EnableCRAG                 bool            `json:"enable_crag"`
	EnableFallback             bool            `json:"enable_fallback"`
	RelevanceThreshold         float64         `json:"relevance_threshold"`
	MaxRetrievalDocs           int             `json:"max_retrieval_docs"`
	DataAccess                 map[string]bool `json:"data_access,omitempty"`
	AnonymizeVendors           bool            `json:"anonymize_vendors"`
	ExcludeSensitiveCategories bool            `json:"exclude_sensitive_categories"`
}

// HasModelConfig returns true if the settings can produce a working client.
func (s *AISettings) HasModelConfig() bool {
	return s.APIKey != "" && s.ModelName != ""
}

// AllowsRetriever reports whether the data-access map permits a retriever.
// Only an explicit false blocks access.
func (s *AISettings) AllowsRetriever(key string) bool {
	if s.DataAccess == nil {
		return true
	}
	allowed, ok := s.DataAccess[key]
	if !ok {
		return true
	}
	return allowed
}

// MaskedAPIKey returns masked version: "sk-a...xyz".
func MaskedAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
