package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-service/model"
	"chat-service/socketio"
	"chat-service/store"

	"github.com/gofiber/fiber/v2"
	"github.com/zishang520/socket.io/v2/socket"
)

// MessageBroadcaster is the slice of the hub the REST message handlers use.
type MessageBroadcaster interface {
	EmitToRoom(room socket.Room, event string, payload any)
	MessageSent()
}

type MessageDeps struct {
	Conversations *store.ConversationStore
	Messages      *store.MessageStore
	Hub           MessageBroadcaster
}

var _ MessageBroadcaster = (*socketio.Hub)(nil)

type messageCreateInput struct {
	ClientMessageID string             `json:"clientMessageId"`
	Content         string             `json:"content"`
	ParentMessageID *uint              `json:"parentMessageId"`
	Attachments     []model.Attachment `json:"attachments"`
}

// MessageList pages a conversation's history with the (createdAt, id) cursor.
func (d *MessageDeps) MessageList(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	conversationID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := d.Conversations.EnsureMember(c.Context(), userID, conversationID); err != nil {
		return fail(c, err)
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}

	var cursor *store.Cursor
	beforeCreatedAt := c.Query("beforeCreatedAt")
	beforeID := c.Query("beforeId")
	if beforeCreatedAt != "" && beforeID != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, beforeCreatedAt)
		if err != nil {
			return fail(c, fmt.Errorf("%w: beforeCreatedAt: %v", store.ErrInvalidInput, err))
		}
		id, err := strconv.ParseUint(beforeID, 10, 64)
		if err != nil {
			return fail(c, fmt.Errorf("%w: beforeId: %v", store.ErrInvalidInput, err))
		}
		cursor = &store.Cursor{CreatedAt: createdAt, ID: uint(id)}
	}

	messages, err := d.Messages.ListByConversation(c.Context(), conversationID, limit, cursor)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, messages)
}

// MessageCreate persists a message idempotently; a duplicate clientMessageId
// returns the original row and is not re-broadcast.
func (d *MessageDeps) MessageCreate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	conversationID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := d.Conversations.EnsureMember(c.Context(), userID, conversationID); err != nil {
		return fail(c, err)
	}

	input := new(messageCreateInput)
	if err := c.BodyParser(input); err != nil {
		return fail(c, fmt.Errorf("%w: %v", store.ErrInvalidInput, err))
	}
	if input.ClientMessageID == "" {
		return fail(c, fmt.Errorf("%w: clientMessageId is required", store.ErrInvalidInput))
	}

	message, fresh, err := d.Messages.CreateIdempotent(c.Context(), store.CreateMessageInput{
		ConversationID:  conversationID,
		SenderID:        userID,
		ClientMessageID: input.ClientMessageID,
		Content:         input.Content,
		ParentMessageID: input.ParentMessageID,
		Attachments:     input.Attachments,
	})
	if err != nil {
		return fail(c, err)
	}

	if fresh {
		d.Hub.MessageSent()
		d.Hub.EmitToRoom(socketio.ConversationRoom(conversationID), "message.new", message)
		return created(c, message)
	}
	return ok(c, message)
}

// MessageEdit mutates content; only the original sender of a live message.
func (d *MessageDeps) MessageEdit(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	input := new(struct {
		Content string `json:"content"`
	})
	if err := c.BodyParser(input); err != nil {
		return fail(c, fmt.Errorf("%w: %v", store.ErrInvalidInput, err))
	}

	message, err := d.Messages.Edit(c.Context(), messageID, userID, input.Content)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, message)
}

// MessageDelete soft-deletes; the returned row carries the placeholder.
func (d *MessageDeps) MessageDelete(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	message, err := d.Messages.Delete(c.Context(), messageID, userID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, message)
}

// MessageRead upserts the caller's read receipt.
func (d *MessageDeps) MessageRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	if err := d.Messages.MarkRead(c.Context(), messageID, userID); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

// ReactionAdd upserts the (message, user, emoji) triple.
func (d *MessageDeps) ReactionAdd(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	input := new(struct {
		Emoji string `json:"emoji"`
	})
	if err := c.BodyParser(input); err != nil {
		return fail(c, fmt.Errorf("%w: %v", store.ErrInvalidInput, err))
	}

	if err := d.Messages.AddReaction(c.Context(), messageID, userID, input.Emoji); err != nil {
		return fail(c, err)
	}
	return created(c, nil)
}

// ReactionRemove hard-deletes the triple.
func (d *MessageDeps) ReactionRemove(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	if err := d.Messages.RemoveReaction(c.Context(), messageID, userID, c.Params("emoji")); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}

// MessageSearch searches content within conversations the caller belongs to;
// membership is checked per conversation id before the query runs.
func (d *MessageDeps) MessageSearch(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}

	query := c.Query("q")
	if len(query) < 2 {
		return fail(c, fmt.Errorf("%w: query too short", store.ErrInvalidInput))
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 50 {
		limit = 20
	}

	var conversationIDs []uint
	for _, raw := range strings.Split(c.Query("conversationIds"), ",") {
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fail(c, fmt.Errorf("%w: conversationIds: %v", store.ErrInvalidInput, err))
		}
		conversationIDs = append(conversationIDs, uint(id))
	}
	if len(conversationIDs) == 0 {
		return fail(c, fmt.Errorf("%w: conversationIds is required", store.ErrInvalidInput))
	}

	for _, id := range conversationIDs {
		if err := d.Conversations.EnsureMember(c.Context(), userID, id); err != nil {
			return fail(c, err)
		}
	}

	messages, err := d.Messages.Search(c.Context(), query, conversationIDs, limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, messages)
}
