package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/duitwise/duitwise-engine/pkg/crypto"
	"github.com/duitwise/duitwise-engine/pkg/models"
)

// AISettingsRepository reads a user's assistant configuration. The agent
// core never writes settings; the management surface owns mutation.
type AISettingsRepository interface {
	Get(ctx context.Context, userID string) (*models.AISettings, error)
}

type aiSettingsRepository struct {
	db        Querier
	encryptor *crypto.CredentialEncryptor
}

// NewAISettingsRepository creates an AISettingsRepository that decrypts
// stored API keys with the given encryptor.
func NewAISettingsRepository(db Querier, encryptor *crypto.CredentialEncryptor) AISettingsRepository {
	return &aiSettingsRepository{db: db, encryptor: encryptor}
}

var _ AISettingsRepository = (*aiSettingsRepository)(nil)

func (r *aiSettingsRepository) Get(ctx context.Context, userID string) (*models.AISettings, error) {
	var (
		settings       models.AISettings
		provider       string
		encryptedKey   string
		dataAccessJSON []byte
		updatedAt      time.Time
	)

	err := r.db.QueryRow(ctx, `
		SELECT user_id, enabled, provider, api_key_encrypted, model_endpoint, model_name,
		       temperature, max_tokens, enable_crag, enable_fallback, relevance_threshold,
		       max_retrieval_docs, data_access, anonymize_vendors, exclude_sensitive_categories,
		       updated_at
		FROM ai_settings
		WHERE user_id = $1`,
		userID,
	).Scan(&settings.UserID, &settings.Enabled, &provider, &encryptedKey,
		&settings.ModelEndpoint, &settings.ModelName, &settings.Temperature,
		&settings.MaxTokens, &settings.EnableCRAG, &settings.EnableFallback,
		&settings.RelevanceThreshold, &settings.MaxRetrievalDocs, &dataAccessJSON,
		&settings.AnonymizeVendors, &settings.ExcludeSensitiveCategories, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ai settings: %w", err)
	}

	settings.Provider = models.Provider(provider)
	settings.UpdatedAt = updatedAt

	if encryptedKey != "" {
		decrypted, err := r.encryptor.Decrypt(encryptedKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt api key: %w", err)
		}
		settings.APIKey = decrypted
	}

	if len(dataAccessJSON) > 0 {
		if err := json.Unmarshal(dataAccessJSON, &settings.DataAccess); err != nil {
			return nil, fmt.Errorf("unmarshal data access: %w", err)
		}
	}

	return &settings, nil
}
