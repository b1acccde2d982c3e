package controller

import (
	"fmt"
	"time"

	"chat-service/model"
	"chat-service/store"

	"github.com/gofiber/fiber/v2"
)

type ConversationDeps struct {
	Conversations *store.ConversationStore
}

type conversationCreateInput struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	MemberIDs []uint `json:"memberIds"`
}

// ConversationList pages the caller's conversations by updatedAt cursor.
func (d *ConversationDeps) ConversationList(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}

	limit := c.QueryInt("limit", 30)
	if limit < 1 || limit > 100 {
		limit = 30
	}

	var before *time.Time
	if cursor := c.Query("cursor"); cursor != "" {
		parsed, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return fail(c, fmt.Errorf("%w: cursor: %v", store.ErrInvalidInput, err))
		}
		before = &parsed
	}

	conversations, err := d.Conversations.ListForUser(c.Context(), userID, limit, before)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, conversations)
}

// ConversationCreate creates a direct or group conversation.
func (d *ConversationDeps) ConversationCreate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}

	input := new(conversationCreateInput)
	if err := c.BodyParser(input); err != nil {
		return fail(c, fmt.Errorf("%w: %v", store.ErrInvalidInput, err))
	}

	var conversation *model.Conversation
	switch input.Kind {
	case model.ConversationDirect:
		if len(input.MemberIDs) != 1 {
			return fail(c, fmt.Errorf("%w: direct conversation needs exactly one member id", store.ErrInvalidInput))
		}
		conversation, err = d.Conversations.CreateDirect(c.Context(), userID, input.MemberIDs[0])
	case model.ConversationGroup:
		title := input.Title
		if title == "" {
			title = "Untitled"
		}
		conversation, err = d.Conversations.CreateGroup(c.Context(), userID, title, input.MemberIDs)
	default:
		return fail(c, fmt.Errorf("%w: kind %q", store.ErrInvalidInput, input.Kind))
	}
	if err != nil {
		return fail(c, err)
	}
	return created(c, conversation)
}

// ConversationArchive flips the caller's own archive flag; archived members
// are denied on their next conversation-scoped action.
func (d *ConversationDeps) ConversationArchive(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}
	conversationID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	input := new(struct {
		Archived bool `json:"archived"`
	})
	if err := c.BodyParser(input); err != nil {
		return fail(c, fmt.Errorf("%w: %v", store.ErrInvalidInput, err))
	}

	if err := d.Conversations.SetArchived(c.Context(), userID, conversationID, input.Archived); err != nil {
		return fail(c, err)
	}
	return ok(c, nil)
}
