package router

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"chat-service/model"
	"chat-service/store"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zishang520/socket.io/v2/socket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeHub struct {
	rooms  []socket.Room
	events []string
	sent   int
	acked  int
}

func (f *fakeHub) EmitToRoom(room socket.Room, event string, _ any) {
	f.rooms = append(f.rooms, room)
	f.events = append(f.events, event)
}

func (f *fakeHub) EmitToUser(uint, string, any) error { return nil }
func (f *fakeHub) SocketConnected()                   {}
func (f *fakeHub) SocketDisconnected()                {}
func (f *fakeHub) MessageSent()                       { f.sent++ }
func (f *fakeHub) MessageAcked()                      { f.acked++ }

func newSocketDeps(t *testing.T) (*SocketDeps, *fakeHub) {
	t.Helper()

	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "test.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationMember{},
		&model.Message{},
		&model.AuditLog{},
	))

	hub := &fakeHub{}
	return &SocketDeps{
		Hub:           hub,
		Conversations: store.NewConversationStore(db, nil),
		Messages:      store.NewMessageStore(db, store.NewAuditSink(db)),
	}, hub
}

func TestMessageSendBroadcastsDuplicateOnlyOnce(t *testing.T) {
	deps, hub := newSocketDeps(t)
	ctx := context.Background()

	conversation, err := deps.Conversations.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)

	ec := &eventContext{userID: 10}
	payload := map[string]any{
		"conversationId":  float64(conversation.ID),
		"clientMessageId": "client-1",
		"content":         "hello",
	}

	first, err := deps.handleMessageSend(ctx, ec, payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"message.new"}, hub.events)
	assert.Equal(t, 1, hub.sent)

	// The resend acks with the original row and must not re-broadcast.
	second, err := deps.handleMessageSend(ctx, ec, payload)
	require.NoError(t, err)
	assert.Equal(t, first["messageId"], second["messageId"])
	assert.Equal(t, []string{"message.new"}, hub.events)
	assert.Equal(t, 1, hub.sent)
}

func TestMessageSendDeniedForNonMember(t *testing.T) {
	deps, hub := newSocketDeps(t)
	ctx := context.Background()

	conversation, err := deps.Conversations.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)

	ec := &eventContext{userID: 99}
	_, err = deps.handleMessageSend(ctx, ec, map[string]any{
		"conversationId":  float64(conversation.ID),
		"clientMessageId": "client-1",
		"content":         "hello",
	})
	assert.ErrorIs(t, err, store.ErrForbidden)
	assert.Empty(t, hub.events)
}

func TestSplitArgs(t *testing.T) {
	payload := map[string]any{"conversationId": float64(1)}
	ack := func([]any, error) {}

	got, gotAck := splitArgs([]any{payload, ack})
	assert.Equal(t, payload, got)
	assert.NotNil(t, gotAck)

	got, gotAck = splitArgs([]any{payload})
	assert.Equal(t, payload, got)
	assert.Nil(t, gotAck)

	got, gotAck = splitArgs([]any{ack})
	assert.Nil(t, got)
	assert.NotNil(t, gotAck)

	got, gotAck = splitArgs(nil)
	assert.Nil(t, got)
	assert.Nil(t, gotAck)
}

func TestDecodePayload(t *testing.T) {
	var room roomPayload
	err := decodePayload(map[string]any{"conversationId": float64(7)}, &room)
	require.NoError(t, err)
	assert.Equal(t, uint(7), room.ConversationID)

	var send sendMessagePayload
	err = decodePayload(map[string]any{
		"conversationId":  float64(7),
		"clientMessageId": "client-1",
		"content":         "hello",
	}, &send)
	require.NoError(t, err)
	assert.Equal(t, "client-1", send.ClientMessageID)
	assert.Equal(t, "hello", send.Content)

	err = decodePayload(nil, &room)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	err = decodePayload("a string where an object belongs", &room)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "UNAUTHORIZED", errorCode(store.ErrUnauthorized))
	assert.Equal(t, "FORBIDDEN", errorCode(fmt.Errorf("wrapped: %w", store.ErrForbidden)))
	assert.Equal(t, "INVALID_INPUT", errorCode(store.ErrInvalidInput))
	assert.Equal(t, "NOT_FOUND", errorCode(store.ErrNotFound))
	assert.Equal(t, "TRANSIENT", errorCode(store.ErrTransient))
	assert.Equal(t, "INTERNAL", errorCode(errors.New("anything else")))
}
