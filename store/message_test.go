package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chat-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newMessageStore(t *testing.T) (*MessageStore, *gorm.DB) {
	db := newTestDB(t)
	return NewMessageStore(db, NewAuditSink(db)), db
}

func TestCreateIdempotentFirstCallWins(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	first, created, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID:  1,
		SenderID:        10,
		ClientMessageID: "client-1",
		Content:         "hello",
	})
	require.NoError(t, err)
	require.True(t, created)

	// Resubmission with different content returns the original unchanged.
	second, created, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID:  1,
		SenderID:        10,
		ClientMessageID: "client-1",
		Content:         "hello again",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hello", second.Content)

	var count int64
	require.NoError(t, db.Model(&model.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateIdempotentSameKeyDifferentConversations(t *testing.T) {
	s, _ := newMessageStore(t)
	ctx := context.Background()

	a, created, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "shared", Content: "in one",
	})
	require.NoError(t, err)
	require.True(t, created)

	b, created, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 2, SenderID: 10, ClientMessageID: "shared", Content: "in two",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateIdempotentSanitizesContent(t *testing.T) {
	s, _ := newMessageStore(t)
	ctx := context.Background()

	_, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID:  1,
		SenderID:        10,
		ClientMessageID: "client-1",
		Content:         "<script>alert(1)</script>",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	message, created, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID:  1,
		SenderID:        10,
		ClientMessageID: "client-2",
		Content:         "safe <script src=x></script>text",
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "safe text", message.Content)
}

func TestCreateIdempotentTouchesConversation(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	conversation := model.Conversation{Kind: model.ConversationDirect, OwnerID: 10, MemberCount: 2}
	require.NoError(t, db.Create(&conversation).Error)
	require.Nil(t, conversation.LastMessageAt)

	_, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID:  conversation.ID,
		SenderID:        10,
		ClientMessageID: "client-1",
		Content:         "hello",
	})
	require.NoError(t, err)

	var reloaded model.Conversation
	require.NoError(t, db.First(&reloaded, conversation.ID).Error)
	assert.NotNil(t, reloaded.LastMessageAt)
}

func TestCreateIdempotentSurvivesConversationTouchFailure(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	// Break only the conversation table; the insert itself must still land
	// and report created=true so the send is broadcast and acked.
	require.NoError(t, db.Migrator().DropTable(&model.Conversation{}))

	message, created, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "client-1", Content: "hello",
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, message)

	// The client's retry is a plain duplicate, not a second broadcast.
	_, created, err = s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "client-1", Content: "hello",
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEditOnlyBySenderOnLiveMessage(t *testing.T) {
	s, _ := newMessageStore(t)
	ctx := context.Background()

	message, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "client-1", Content: "original",
	})
	require.NoError(t, err)

	_, err = s.Edit(ctx, message.ID, 99, "not yours")
	assert.ErrorIs(t, err, ErrNotFound)

	edited, err := s.Edit(ctx, message.ID, 10, "updated")
	require.NoError(t, err)
	assert.Equal(t, "updated", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	_, err = s.Delete(ctx, message.ID, 10)
	require.NoError(t, err)

	_, err = s.Edit(ctx, message.ID, 10, "after delete")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteKeepsRowWithPlaceholder(t *testing.T) {
	s, _ := newMessageStore(t)
	ctx := context.Background()

	message, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "client-1", Content: "secret",
	})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, message.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, message.ID, deleted.ID)
	assert.Equal(t, model.DeletedPlaceholder, deleted.Content)
	assert.True(t, deleted.Deleted())

	// A second delete finds no live row.
	_, err = s.Delete(ctx, message.ID, 10)
	assert.ErrorIs(t, err, ErrNotFound)

	// The row remains loadable and still occupies its history slot.
	reloaded, err := s.GetByID(ctx, message.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeletedPlaceholder, reloaded.Content)

	history, err := s.ListByConversation(ctx, 1, 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestListByConversationCursorIsDeterministic(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 5; i++ {
		message, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
			ConversationID:  1,
			SenderID:        10,
			ClientMessageID: fmt.Sprintf("client-%d", i),
			Content:         fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, message.ID)
	}

	// Force every created_at to the same instant; only the id tie-break
	// keeps the pages stable.
	shared := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&model.Message{}).
		Where("conversation_id = ?", 1).
		Update("created_at", shared).Error)

	var seen []uint
	var cursor *Cursor
	for {
		page, err := s.ListByConversation(ctx, 1, 2, cursor)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			seen = append(seen, m.ID)
		}
		last := page[len(page)-1]
		cursor = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	// Every message exactly once, newest id first.
	require.Len(t, seen, 5)
	for i := 0; i < len(seen)-1; i++ {
		assert.Greater(t, seen[i], seen[i+1])
	}
	assert.ElementsMatch(t, ids, seen)
}

func TestListByConversationOrdersByCreatedAtDesc(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	older, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "old", Content: "old",
	})
	require.NoError(t, err)
	newer, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "new", Content: "new",
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&model.Message{}).Where("id = ?", older.ID).
		Update("created_at", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)).Error)
	require.NoError(t, db.Model(&model.Message{}).Where("id = ?", newer.ID).
		Update("created_at", time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)).Error)

	page, err := s.ListByConversation(ctx, 1, 10, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newer.ID, page[0].ID)
	assert.Equal(t, older.ID, page[1].ID)
}

func TestReceiptUpserts(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkDelivered(ctx, 1, 20))
	require.NoError(t, s.MarkRead(ctx, 1, 20))
	// A later delivered stamp must not clear read_at.
	require.NoError(t, s.MarkDelivered(ctx, 1, 20))

	var receipts []model.MessageReceipt
	require.NoError(t, db.Find(&receipts).Error)
	require.Len(t, receipts, 1)
	assert.NotNil(t, receipts[0].DeliveredAt)
	assert.NotNil(t, receipts[0].ReadAt)
}

func TestReactionsUpsertAndRemove(t *testing.T) {
	s, db := newMessageStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.AddReaction(ctx, 1, 20, ""), ErrInvalidInput)

	require.NoError(t, s.AddReaction(ctx, 1, 20, "👍"))
	require.NoError(t, s.AddReaction(ctx, 1, 20, "👍"))
	require.NoError(t, s.AddReaction(ctx, 1, 21, "👍"))

	var count int64
	require.NoError(t, db.Model(&model.Reaction{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	require.NoError(t, s.RemoveReaction(ctx, 1, 20, "👍"))
	require.NoError(t, db.Model(&model.Reaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSearchSkipsDeletedAndOtherConversations(t *testing.T) {
	s, _ := newMessageStore(t)
	ctx := context.Background()

	match, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "a", Content: "deploy plan draft",
	})
	require.NoError(t, err)
	gone, _, err := s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 1, SenderID: 10, ClientMessageID: "b", Content: "deploy rollback notes",
	})
	require.NoError(t, err)
	_, _, err = s.CreateIdempotent(ctx, CreateMessageInput{
		ConversationID: 2, SenderID: 10, ClientMessageID: "c", Content: "deploy elsewhere",
	})
	require.NoError(t, err)

	_, err = s.Delete(ctx, gone.ID, 10)
	require.NoError(t, err)

	results, err := s.Search(ctx, "deploy", []uint{1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.ID, results[0].ID)

	results, err = s.Search(ctx, "deploy", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
