package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/agent"
	"github.com/duitwise/duitwise-engine/pkg/auth"
	"github.com/duitwise/duitwise-engine/pkg/models"
	"github.com/duitwise/duitwise-engine/pkg/ratelimit"
	"github.com/duitwise/duitwise-engine/pkg/repositories"
)

type stubConversations struct {
	conversations map[uuid.UUID]*models.Conversation
	messages      []*models.Message
	counterCalls  int
	counterTokens int
	created       []*models.Conversation
}

func newStubConversations() *stubConversations {
	return &stubConversations{conversations: make(map[uuid.UUID]*models.Conversation)}
}

func (s *stubConversations) Create(_ context.Context, userID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: uuid.New(), UserID: userID, Title: title}
	s.conversations[conv.ID] = conv
	s.created = append(s.created, conv)
	return conv, nil
}

func (s *stubConversations) Get(_ context.Context, id uuid.UUID, userID string) (*models.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	return conv, nil
}

func (s *stubConversations) AppendMessage(_ context.Context, msg *models.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubConversations) IncrementCounters(_ context.Context, _ uuid.UUID, messages, tokens int) error {
	s.counterCalls++
	s.counterTokens += tokens
	return nil
}

func (s *stubConversations) ListRecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var out []models.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].ConversationID == conversationID {
			out = append(out, *s.messages[i])
		}
	}
	return out, nil
}

type stubSettings struct {
	settings *models.AISettings
	err      error
	calls    int
}

func (s *stubSettings) Get(context.Context, string) (*models.AISettings, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.settings, nil
}

type stubCategories struct{}

func (stubCategories) ListCategories(context.Context, string) ([]models.Category, error) {
	return []models.Category{{ID: "cat-1", Name: "Groceries"}}, nil
}

type stubLimiter struct {
	err   error
	calls int
}

func (s *stubLimiter) Allow(context.Context, string) error {
	s.calls++
	return s.err
}

type stubProcessor struct {
	result *models.AgentResult
	err    error
	calls  int
}

func (s *stubProcessor) Process(_ context.Context, _, _ string, _ agent.ProcessOptions) (*models.AgentResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type handlerFixture struct {
	handler       *AgentHandler
	conversations *stubConversations
	settings      *stubSettings
	limiter       *stubLimiter
	processor     *stubProcessor
}

func enabledSettings() *models.AISettings {
	return &models.AISettings{
		Enabled:   true,
		Provider:  models.ProviderOpenAI,
		APIKey:    "sk-test-key-12345678",
		ModelName: "gpt-4o-mini",
	}
}

func okResult() *models.AgentResult {
	return &models.AgentResult{
		Content: "Your spending is on track.",
		Metadata: models.ResultMetadata{
			Intent:          models.IntentSpendingAnalysis,
			DataSources:     []string{"transactions"},
			Confidence:      0.9,
			RecordsAnalyzed: 12,
		},
	}
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		conversations: newStubConversations(),
		settings:      &stubSettings{settings: enabledSettings()},
		limiter:       &stubLimiter{},
		processor:     &stubProcessor{result: okResult()},
	}
	f.handler = NewAgentHandler(
		f.processor,
		agent.NewStreamer(20, 0),
		f.conversations,
		f.settings,
		stubCategories{},
		f.limiter,
		zap.NewNop(),
	)
	return f
}

func doQuery(t *testing.T, f *handlerFixture, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/agent/query", bytes.NewReader(raw))
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	}
	rec := httptest.NewRecorder()
	f.handler.Query(rec, req)
	return rec
}

func TestQuery_Unauthenticated(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "", QueryRequest{Message: "hello"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.processor.calls)
}

func TestQuery_MissingMessage(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "user-1", QueryRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.limiter.calls, "validation runs before the rate limiter")
}

func TestQuery_MessageTooLong(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "user-1", QueryRequest{Message: strings.Repeat("a", maxMessageLength+1)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.processor.calls)
}

func TestQuery_MaxLengthMessageAccepted(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "user-1", QueryRequest{Message: strings.Repeat("a", maxMessageLength)})

	assert.Equal(t, http.StatusOK, rec.Code)
}

// failingStreamer aborts mid-stream the way a delivery failure would.
type failingStreamer struct{}

func (failingStreamer) Stream(_ context.Context, conversationID string, _ *models.AgentResult, events chan<- models.StreamEvent) {
	events <- models.StreamEvent{Type: models.StreamEventStart, ConversationID: conversationID}
	events <- models.StreamEvent{Type: models.StreamEventChunk, Text: "partial"}
	events <- models.NewErrorEvent("stream interrupted")
	events <- models.StreamEvent{Type: models.StreamEventChunk, Text: "never delivered"}
	events <- models.StreamEvent{Type: models.StreamEventDone}
}

func TestQuery_StreamingErrorEventTerminatesStream(t *testing.T) {
	f := newFixture()
	f.handler.streamer = failingStreamer{}

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello", Stream: true})

	require.Equal(t, http.StatusOK, rec.Code)

	var events []models.StreamEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event models.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}

	// Nothing is written after the error frame.
	require.Len(t, events, 3)
	assert.Equal(t, models.StreamEventStart, events[0].Type)
	assert.Equal(t, models.StreamEventChunk, events[1].Type)
	assert.Equal(t, models.StreamEventError, events[2].Type)
	assert.Equal(t, "stream interrupted", events[2].Message)
}

func TestQuery_LengthLimitCountsCharactersNotBytes(t *testing.T) {
	f := newFixture()

	// Exactly 4000 characters but well over 4000 bytes; a byte-counted
	// limit would reject this.
	rec := doQuery(t, f, "user-1", QueryRequest{Message: strings.Repeat("ç", maxMessageLength)})

	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doQuery(t, f, "user-1", QueryRequest{Message: strings.Repeat("ç", maxMessageLength+1)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_RateLimited(t *testing.T) {
	f := newFixture()
	f.limiter.err = ratelimit.ErrLimited

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello"})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, f.settings.calls, "rate limit check runs before settings lookup")
	assert.Zero(t, f.processor.calls)
}

func TestQuery_AIDisabledHasNoSideEffects(t *testing.T) {
	f := newFixture()
	f.settings.settings = &models.AISettings{Enabled: false}

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, f.processor.calls)
	assert.Empty(t, f.conversations.created)
	assert.Empty(t, f.conversations.messages)
}

func TestQuery_MissingSettingsIsForbidden(t *testing.T) {
	f := newFixture()
	f.settings.err = repositories.ErrNotFound

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQuery_MissingAPIKey(t *testing.T) {
	f := newFixture()
	f.settings.settings.APIKey = ""

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing_model_config", body["error"])
}

func TestQuery_UnknownConversation(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "user-1", QueryRequest{
		ConversationID: uuid.NewString(),
		Message:        "hello",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.processor.calls)
}

func TestQuery_ForeignConversationLooksMissing(t *testing.T) {
	f := newFixture()
	conv, err := f.conversations.Create(context.Background(), "someone-else", "their chat")
	require.NoError(t, err)

	rec := doQuery(t, f, "user-1", QueryRequest{
		ConversationID: conv.ID.String(),
		Message:        "hello",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery_NewConversationTitleTruncated(t *testing.T) {
	f := newFixture()
	long := strings.Repeat("q", 80)

	rec := doQuery(t, f, "user-1", QueryRequest{Message: long})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.conversations.created, 1)
	assert.Len(t, f.conversations.created[0].Title, models.ConversationTitleLimit)
}

func TestQuery_SuccessPersistsTurn(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "how am I doing?"})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Your spending is on track.", resp.Message)
	assert.Equal(t, models.IntentSpendingAnalysis, resp.Metadata.Intent)
	assert.NotEmpty(t, resp.ConversationID)

	require.Len(t, f.conversations.messages, 2)
	assert.Equal(t, models.ChatRoleUser, f.conversations.messages[0].Role)
	assert.Equal(t, models.ChatRoleAssistant, f.conversations.messages[1].Role)
	assert.Equal(t, "spending_analysis", f.conversations.messages[1].Metadata["intent"])
	assert.Equal(t, 1, f.conversations.counterCalls)
	assert.Positive(t, f.conversations.counterTokens)
}

func TestQuery_GenerationFailure(t *testing.T) {
	f := newFixture()
	f.processor.result = nil
	f.processor.err = errors.New("provider exploded: secret internal detail")

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret internal detail")
	assert.Empty(t, f.conversations.messages, "nothing persisted on failure")
	assert.Zero(t, f.conversations.counterCalls)
}

func TestQuery_StreamingDeliversSSE(t *testing.T) {
	f := newFixture()

	rec := doQuery(t, f, "user-1", QueryRequest{Message: "hello", Stream: true})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []models.StreamEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event models.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, models.StreamEventStart, events[0].Type)
	assert.Equal(t, models.StreamEventDone, events[len(events)-1].Type)

	var text strings.Builder
	var sawMetadata bool
	for _, e := range events {
		switch e.Type {
		case models.StreamEventChunk:
			text.WriteString(e.Text)
		case models.StreamEventMetadata:
			sawMetadata = true
			require.NotNil(t, e.Metadata)
			assert.Equal(t, 12, e.Metadata.RecordsAnalyzed)
		}
	}
	assert.True(t, sawMetadata)
	assert.Equal(t, "Your spending is on track.", text.String())

	// Streaming still persists the full turn.
	assert.Len(t, f.conversations.messages, 2)
}

func TestGetMessages_ChronologicalOrder(t *testing.T) {
	f := newFixture()
	conv, err := f.conversations.Create(context.Background(), "user-1", "chat")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.conversations.AppendMessage(context.Background(), &models.Message{
			ConversationID: conv.ID,
			Role:           models.ChatRoleUser,
			Content:        fmt.Sprintf("message %d", i),
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/agent/conversations/"+conv.ID.String()+"/messages", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "user-1"))
	req.SetPathValue("id", conv.ID.String())
	rec := httptest.NewRecorder()
	f.handler.GetMessages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "message 0", body.Messages[0].Content)
	assert.Equal(t, "message 2", body.Messages[2].Content)
}

func TestGetMessages_ForeignConversation(t *testing.T) {
	f := newFixture()
	conv, err := f.conversations.Create(context.Background(), "someone-else", "chat")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/agent/conversations/"+conv.ID.String()+"/messages", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "user-1"))
	req.SetPathValue("id", conv.ID.String())
	rec := httptest.NewRecorder()
	f.handler.GetMessages(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSettings_MasksAPIKey(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/agent/settings", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "user-1"))
	rec := httptest.NewRecorder()
	f.handler.GetSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sk-t...5678", resp.APIKeyMasked)
	assert.NotContains(t, rec.Body.String(), "sk-test-key-12345678")
}
