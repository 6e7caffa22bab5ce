package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/llm"
	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/retrievers"
)

// Confidence policy: a successful model answer starts at the base and loses
// a little per stubbed source and more per dropped source, never falling
// below the floor. The floor stays above FallbackConfidence so a fallback
// answer always scores strictly lower than any model answer.
const (
	confidenceBase        = 0.9
	confidenceStubPenalty = 0.07
	confidenceDropPenalty = 0.12
	confidenceFloor       = 0.35
)

// ErrProviderUnavailable wraps a provider failure when fallback is disabled.
var ErrProviderUnavailable = errors.New("model provider unavailable")

// ProcessOptions carry per-turn collaborator state into the orchestrator.
type ProcessOptions struct {
	// History is the recent conversation, oldest first.
	History []models.Message

	// Settings are the user's decrypted AI settings; the orchestrator
	// never writes them.
	Settings *models.AISettings

	// Categories is the user's category vocabulary for entity matching.
	Categories []models.Category
}

// Defaults fill in settings fields the user left unset.
type Defaults struct {
	Temperature float64
	MaxTokens   int
}

// Orchestrator runs the per-turn loop: analyze, select, assemble, compose,
// call the provider or fall back, and shape the result.
type Orchestrator struct {
	analyzer  *Analyzer
	assembler *Assembler
	composer  *Composer
	factory   llm.ClientFactory
	defaults  Defaults
	logger    *zap.Logger
}

// NewOrchestrator wires the turn loop.
func NewOrchestrator(
	analyzer *Analyzer,
	assembler *Assembler,
	composer *Composer,
	factory llm.ClientFactory,
	defaults Defaults,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		analyzer:  analyzer,
		assembler: assembler,
		composer:  composer,
		factory:   factory,
		defaults:  defaults,
		logger:    logger.Named("orchestrator"),
	}
}

// Process executes one turn. Provider failures are recovered through the
// deterministic fallback when the user's settings enable it; otherwise the
// error propagates. A single provider attempt is made; there are no retries.
func (o *Orchestrator) Process(ctx context.Context, message, userID string, opts ProcessOptions) (*models.AgentResult, error) {
	start := time.Now()
	settings := opts.Settings

	analysis := o.analyzer.Analyze(message, opts.History, opts.Categories)

	selected := SelectRetrievers(analysis, Permissions(settings.DataAccess))

	limit := CalculateLimit(len(selected))
	if settings.MaxRetrievalDocs > 0 && settings.MaxRetrievalDocs < limit {
		limit = settings.MaxRetrievalDocs
	}

	retrieveOpts := retrievers.Options{
		DateRange:                  analysis.Entities.DateRange,
		Limit:                      limit,
		CategoryIDs:                analysis.Entities.CategoryIDs,
		AmountMin:                  analysis.Entities.AmountMin,
		AmountMax:                  analysis.Entities.AmountMax,
		AnonymizeVendors:           settings.AnonymizeVendors,
		ExcludeSensitiveCategories: settings.ExcludeSensitiveCategories,
	}

	assembled := o.assembler.Assemble(ctx, userID, analysis, selected, retrieveOpts, models.UserContext{
		Currency:   "MYR",
		Locale:     "ms-MY",
		FiscalYear: time.Now().Year(),
	})

	messages, err := o.composer.Compose(assembled, opts.History, "")
	if err != nil {
		return nil, fmt.Errorf("compose prompt: %w", err)
	}

	result, err := o.callProvider(ctx, settings, messages)
	if err != nil {
		o.logger.Error("provider call failed",
			zap.String("intent", string(analysis.Intent)),
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.Error(err))

		if !settings.EnableFallback {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}

		o.logger.Info("using deterministic fallback", zap.String("intent", string(analysis.Intent)))
		return &models.AgentResult{
			Content: GenerateFallback(assembled),
			Metadata: models.ResultMetadata{
				Intent:           analysis.Intent,
				DataSources:      assembled.Metadata.RetrieversUsed,
				Confidence:       FallbackConfidence,
				RecordsAnalyzed:  assembled.TotalRecords,
				ProcessingTimeMs: time.Since(start).Milliseconds(),
			},
			FallbackUsed: true,
		}, nil
	}

	return &models.AgentResult{
		Content: result.Content,
		Metadata: models.ResultMetadata{
			Intent:           analysis.Intent,
			DataSources:      assembled.Metadata.RetrieversUsed,
			Confidence:       confidence(selected, assembled),
			RecordsAnalyzed:  assembled.TotalRecords,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
		FallbackUsed: false,
	}, nil
}

// callProvider makes the single provider attempt for the turn.
func (o *Orchestrator) callProvider(ctx context.Context, settings *models.AISettings, messages []llm.Message) (*llm.ChatResult, error) {
	client, err := o.factory.CreateForSettings(settings)
	if err != nil {
		return nil, err
	}

	temperature := settings.Temperature
	if temperature == 0 {
		temperature = o.defaults.Temperature
	}
	maxTokens := settings.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.defaults.MaxTokens
	}

	chatOpts := llm.ChatOptions{
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	// Clients that can stream are driven through their streaming call and
	// the fragments accumulated into one result. A client without the
	// capability silently takes the blocking path instead.
	if streamer, ok := client.(llm.ChatStreamer); ok {
		return streamer.ChatStream(ctx, messages, chatOpts, nil)
	}
	return client.Chat(ctx, messages, chatOpts)
}

// confidence derives the answer confidence from retrieval completeness.
// The model never produces this number: each stubbed source costs a little,
// each source that was selected but did not survive assembly costs more.
func confidence(selected []string, assembled *models.AssembledContext) float64 {
	stubbed := 0
	for _, d := range assembled.RelevantData {
		if d.Stubbed {
			stubbed++
		}
	}
	dropped := len(selected) - len(assembled.Metadata.RetrieversUsed)
	if dropped < 0 {
		dropped = 0
	}

	score := confidenceBase -
		confidenceStubPenalty*float64(stubbed) -
		confidenceDropPenalty*float64(dropped)
	if score < confidenceFloor {
		score = confidenceFloor
	}
	return score
}
