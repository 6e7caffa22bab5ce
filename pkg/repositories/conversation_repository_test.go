package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

func TestConversationRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewConversationRepository(mock)
	conv, err := repo.Create(context.Background(), "user-1", "How much did I spend?")

	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, "How much did I spend?", conv.Title)
	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "title", "total_messages", "total_tokens_used",
		"is_archived", "created_at", "updated_at",
	}).AddRow(id, "user-1", "title", 4, 512, false, now, now)

	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(id, "user-1").
		WillReturnRows(rows)

	repo := NewConversationRepository(mock)
	conv, err := repo.Get(context.Background(), id, "user-1")

	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, 4, conv.TotalMessages)
	assert.Equal(t, 512, conv.TotalTokensUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetMissingReturnsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs(id, "other-user").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "title", "total_messages", "total_tokens_used",
			"is_archived", "created_at", "updated_at",
		}))

	repo := NewConversationRepository(mock)
	_, err = repo.Get(context.Background(), id, "other-user")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRepository_AppendMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewConversationRepository(mock)
	msg := &models.Message{
		ConversationID: uuid.New(),
		Role:           models.ChatRoleAssistant,
		Content:        "answer",
		Metadata:       map[string]any{"intent": "budget_review"},
	}

	require.NoError(t, repo.AppendMessage(context.Background(), msg))
	assert.NotEqual(t, uuid.Nil, msg.ID, "an ID is assigned on insert")
	assert.False(t, msg.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_IncrementCounters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, 2, 135).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewConversationRepository(mock)
	require.NoError(t, repo.IncrementCounters(context.Background(), id, 2, 135))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_IncrementCountersMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, 2, 135).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewConversationRepository(mock)
	assert.ErrorIs(t, repo.IncrementCounters(context.Background(), id, 2, 135), ErrNotFound)
}

func TestConversationRepository_ListRecentMessages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "conversation_id", "role", "content", "metadata", "created_at",
	}).
		AddRow(uuid.New(), convID, models.ChatRoleAssistant, "newest", []byte(`{"intent":"general_advice"}`), now).
		AddRow(uuid.New(), convID, models.ChatRoleUser, "older", []byte(nil), now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, conversation_id, role").
		WithArgs(convID, 10).
		WillReturnRows(rows)

	repo := NewConversationRepository(mock)
	messages, err := repo.ListRecentMessages(context.Background(), convID, 10)

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "newest", messages[0].Content)
	assert.Equal(t, "general_advice", messages[0].Metadata["intent"])
	assert.Nil(t, messages[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}
