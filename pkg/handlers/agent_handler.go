package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/agent"
	"github.com/duitwise/duitwise-engine/pkg/auth"
	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/ratelimit"
	"github.com/duitwise/duitwise-engine/pkg/repositories"
)

// maxMessageLength bounds the user's question. Anything longer is rejected
// before any retrieval work starts.
const maxMessageLength = 4000

const defaultHistoryLimit = 10

// TurnProcessor runs one full agent turn and returns the finished answer.
type TurnProcessor interface {
	Process(ctx context.Context, message, userID string, opts agent.ProcessOptions) (*models.AgentResult, error)
}

// EventStreamer replays a finished answer as a paced event sequence.
type EventStreamer interface {
	Stream(ctx context.Context, conversationID string, result *models.AgentResult, events chan<- models.StreamEvent)
}

// QueryRequest is the body of POST /api/agent/query.
type QueryRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Stream         bool   `json:"stream,omitempty"`
}

// QueryResponse is the non-streaming answer envelope.
type QueryResponse struct {
	ConversationID string                `json:"conversation_id"`
	Message        string                `json:"message"`
	Metadata       models.ResultMetadata `json:"metadata"`
	FallbackUsed   bool                  `json:"fallback_used"`
}

// SettingsResponse is the read-only settings view with the API key masked.
type SettingsResponse struct {
	Enabled                    bool            `json:"enabled"`
	Provider                   models.Provider `json:"provider"`
	APIKeyMasked               string          `json:"api_key_masked"`
	ModelEndpoint              string          `json:"model_endpoint,omitempty"`
	ModelName                  string          `json:"model_name"`
	Temperature                float64         `json:"temperature"`
	MaxTokens                  int             `json:"max_tokens"`
	EnableFallback             bool            `json:"enable_fallback"`
	AnonymizeVendors           bool            `json:"anonymize_vendors"`
	ExcludeSensitiveCategories bool            `json:"exclude_sensitive_categories"`
}

// AgentHandler serves the agent turn endpoint, conversation history, and
// the masked settings view.
type AgentHandler struct {
	orchestrator  TurnProcessor
	streamer      EventStreamer
	conversations repositories.ConversationRepository
	settings      repositories.AISettingsRepository
	categories    repositories.CategoryRepository
	limiter       ratelimit.RateLimiter
	logger        *zap.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(
	orchestrator TurnProcessor,
	streamer EventStreamer,
	conversations repositories.ConversationRepository,
	settings repositories.AISettingsRepository,
	categories repositories.CategoryRepository,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) *AgentHandler {
	return &AgentHandler{
		orchestrator:  orchestrator,
		streamer:      streamer,
		conversations: conversations,
		settings:      settings,
		categories:    categories,
		limiter:       limiter,
		logger:        logger.Named("agent_handler"),
	}
}

// RegisterRoutes registers the agent handler's routes on the given mux.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/agent/query", authMiddleware.RequireAuth(h.Query))
	mux.HandleFunc("GET /api/agent/conversations/{id}/messages", authMiddleware.RequireAuth(h.GetMessages))
	mux.HandleFunc("GET /api/agent/settings", authMiddleware.RequireAuth(h.GetSettings))
}

// Query handles POST /api/agent/query. The checks run in a fixed order so a
// request that fails several of them always gets the same status: auth,
// body validation, rate limit, settings, conversation lookup. Nothing is
// persisted unless generation completes.
func (h *AgentHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Message == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_message", "Message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		_ = ErrorResponse(w, http.StatusBadRequest, "message_too_long",
			fmt.Sprintf("Message exceeds %d characters", maxMessageLength))
		return
	}

	if err := h.limiter.Allow(r.Context(), userID); err != nil {
		if errors.Is(err, ratelimit.ErrLimited) {
			_ = ErrorResponse(w, http.StatusTooManyRequests, "rate_limited",
				"Too many requests, try again shortly")
			return
		}
		// Limiter backend trouble should not take the product down.
		h.logger.Warn("rate limiter check failed, allowing request", zap.Error(err))
	}

	settings, err := h.settings.Get(r.Context(), userID)
	if errors.Is(err, repositories.ErrNotFound) {
		_ = ErrorResponse(w, http.StatusForbidden, "ai_disabled", "AI assistant is not configured")
		return
	}
	if err != nil {
		h.logger.Error("failed to load ai settings", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		return
	}
	if !settings.Enabled {
		_ = ErrorResponse(w, http.StatusForbidden, "ai_disabled", "AI assistant is disabled")
		return
	}
	if !settings.HasModelConfig() {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_model_config",
			"AI settings are missing an API key or model name")
		return
	}

	conv, ok := h.resolveConversation(w, r, userID, &req)
	if !ok {
		return
	}

	history, err := h.conversations.ListRecentMessages(r.Context(), conv.ID, defaultHistoryLimit)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		return
	}
	reverseMessages(history)

	categories, err := h.categories.ListCategories(r.Context(), userID)
	if err != nil {
		// Entity matching degrades gracefully without the vocabulary.
		h.logger.Warn("failed to load categories", zap.Error(err))
	}

	result, err := h.orchestrator.Process(r.Context(), req.Message, userID, agent.ProcessOptions{
		History:    history,
		Settings:   settings,
		Categories: categories,
	})
	if err != nil {
		h.logger.Error("turn failed",
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "generation_failed",
			"Unable to generate a response")
		return
	}

	h.persistTurn(r.Context(), conv.ID, req.Message, result)

	if req.Stream {
		h.streamResult(w, r, conv.ID.String(), result)
		return
	}

	response := QueryResponse{
		ConversationID: conv.ID.String(),
		Message:        result.Content,
		Metadata:       result.Metadata,
		FallbackUsed:   result.FallbackUsed,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// resolveConversation loads an existing conversation or creates a new one
// titled after the first message. Writes the error response itself on
// failure.
func (h *AgentHandler) resolveConversation(w http.ResponseWriter, r *http.Request, userID string, req *QueryRequest) (*models.Conversation, bool) {
	if req.ConversationID == "" {
		conv, err := h.conversations.Create(r.Context(), userID, models.TitleFromMessage(req.Message))
		if err != nil {
			h.logger.Error("failed to create conversation", zap.Error(err))
			_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
			return nil, false
		}
		return conv, true
	}

	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_conversation_id", "Invalid conversation ID")
		return nil, false
	}

	conv, err := h.conversations.Get(r.Context(), id, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		_ = ErrorResponse(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		return nil, false
	}

	return conv, true
}

// persistTurn stores the user message, the assistant answer with its
// retrieval metadata, and bumps the conversation counters. The answer was
// already generated; persistence trouble is logged but does not fail the
// request.
func (h *AgentHandler) persistTurn(ctx context.Context, conversationID uuid.UUID, message string, result *models.AgentResult) {
	userMsg := &models.Message{
		ConversationID: conversationID,
		Role:           models.ChatRoleUser,
		Content:        message,
	}
	if err := h.conversations.AppendMessage(ctx, userMsg); err != nil {
		h.logger.Error("failed to persist user message", zap.Error(err))
		return
	}

	assistantMsg := &models.Message{
		ConversationID: conversationID,
		Role:           models.ChatRoleAssistant,
		Content:        result.Content,
		Metadata: map[string]any{
			"intent":           string(result.Metadata.Intent),
			"data_sources":     result.Metadata.DataSources,
			"confidence":       result.Metadata.Confidence,
			"records_analyzed": result.Metadata.RecordsAnalyzed,
			"latency_ms":       result.Metadata.ProcessingTimeMs,
			"fallback_used":    result.FallbackUsed,
		},
	}
	if err := h.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		h.logger.Error("failed to persist assistant message", zap.Error(err))
		return
	}

	tokens := agent.EstimateTokens(message) + agent.EstimateTokens(result.Content)
	if err := h.conversations.IncrementCounters(ctx, conversationID, 2, tokens); err != nil {
		h.logger.Error("failed to increment conversation counters", zap.Error(err))
	}
}

// streamResult delivers the finished answer over SSE.
func (h *AgentHandler) streamResult(w http.ResponseWriter, r *http.Request, conversationID string, result *models.AgentResult) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		_ = ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported")
		return
	}

	eventChan := make(chan models.StreamEvent, 100)

	go func() {
		defer close(eventChan)
		h.streamer.Stream(r.Context(), conversationID, result, eventChan)
	}()

	for event := range eventChan {
		data, err := json.Marshal(event)
		if err != nil {
			// The stream cannot continue past a frame it failed to
			// encode; tell the client and terminate.
			h.logger.Error("failed to marshal event", zap.Error(err))
			event = models.NewErrorEvent("stream encoding failed")
			data, _ = json.Marshal(event)
		}

		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		if event.Type == models.StreamEventDone || event.Type == models.StreamEventError {
			break
		}
	}
}

// GetMessages handles GET /api/agent/conversations/{id}/messages.
// Returns the most recent messages in chronological order.
func (h *AgentHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_conversation_id", "Invalid conversation ID")
		return
	}

	conv, err := h.conversations.Get(r.Context(), id, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		_ = ErrorResponse(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	messages, err := h.conversations.ListRecentMessages(r.Context(), conv.ID, limit)
	if err != nil {
		h.logger.Error("failed to load messages", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		return
	}
	reverseMessages(messages)

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID.String(),
		"messages":        messages,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// GetSettings handles GET /api/agent/settings. The API key is never
// returned in full.
func (h *AgentHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	settings, err := h.settings.Get(r.Context(), userID)
	if errors.Is(err, repositories.ErrNotFound) {
		_ = ErrorResponse(w, http.StatusNotFound, "settings_not_found", "AI settings not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load ai settings", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		return
	}

	response := SettingsResponse{
		Enabled:                    settings.Enabled,
		Provider:                   settings.Provider,
		APIKeyMasked:               models.MaskedAPIKey(settings.APIKey),
		ModelEndpoint:              settings.ModelEndpoint,
		ModelName:                  settings.ModelName,
		Temperature:                settings.Temperature,
		MaxTokens:                  settings.MaxTokens,
		EnableFallback:             settings.EnableFallback,
		AnonymizeVendors:           settings.AnonymizeVendors,
		ExcludeSensitiveCategories: settings.ExcludeSensitiveCategories,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// reverseMessages flips newest-first storage order into chronological order.
func reverseMessages(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
