package store

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"chat-service/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageStore is the durable, idempotent message log plus its receipts and
// reactions. Duplicate client submissions never produce duplicate rows; the
// unique (conversation_id, client_message_id) index is the whole contract.
type MessageStore struct {
	db    *gorm.DB
	audit *AuditSink
}

func NewMessageStore(db *gorm.DB, audit *AuditSink) *MessageStore {
	return &MessageStore{db: db, audit: audit}
}

type CreateMessageInput struct {
	ConversationID  uint
	SenderID        uint
	ClientMessageID string
	Content         string
	ParentMessageID *uint
	Attachments     []model.Attachment
}

// CreateIdempotent inserts the message keyed by (conversationId,
// clientMessageId). If a row already exists for that key the existing row is
// returned unchanged with created=false; the resubmitted content is
// discarded. A fresh insert also bumps the conversation's last-activity
// timestamps and appends an audit entry (best effort). Callers use created to
// broadcast each message at most once.
func (s *MessageStore) CreateIdempotent(ctx context.Context, in CreateMessageInput) (*model.Message, bool, error) {
	content := SanitizeContent(in.Content)
	if content == "" {
		return nil, false, fmt.Errorf("%w: content empty after sanitization", ErrInvalidInput)
	}

	message := model.Message{
		ConversationID:  in.ConversationID,
		SenderID:        in.SenderID,
		Content:         content,
		ParentMessageID: in.ParentMessageID,
		Attachments:     in.Attachments,
	}
	if in.ClientMessageID != "" {
		message.ClientMessageID = &in.ClientMessageID
	}

	if message.ClientMessageID != nil {
		result := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "client_message_id"}},
				DoNothing: true,
			}).
			Create(&message)
		if result.Error != nil {
			return nil, false, fmt.Errorf("%w: insert message: %v", ErrTransient, result.Error)
		}
		if result.RowsAffected == 0 {
			// Duplicate submission: hand back the original row, first call wins.
			var existing model.Message
			err := s.db.WithContext(ctx).
				Where("conversation_id = ? AND client_message_id = ?", in.ConversationID, in.ClientMessageID).
				First(&existing).Error
			if err != nil {
				return nil, false, fmt.Errorf("%w: load existing message: %v", ErrTransient, err)
			}
			return &existing, false, nil
		}
	} else {
		if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
			return nil, false, fmt.Errorf("%w: insert message: %v", ErrTransient, err)
		}
	}

	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", in.ConversationID).
		Updates(map[string]any{"last_message_at": now, "updated_at": now}).Error
	if err != nil {
		// The message row is durable at this point. Failing the call here
		// would make the client's retry look like a duplicate and suppress
		// the broadcast, so a missed inbox touch is only logged.
		log.Printf("conversation touch failed: conversation=%d: %v", in.ConversationID, err)
	}

	s.audit.Append(ctx, in.SenderID, "message.create", "message", strconv.FormatUint(uint64(message.ID), 10), map[string]any{
		"conversation_id": in.ConversationID,
	})
	return &message, true, nil
}

// GetByID loads a message regardless of its deleted state.
func (s *MessageStore) GetByID(ctx context.Context, messageID uint) (*model.Message, error) {
	var message model.Message
	err := s.db.WithContext(ctx).First(&message, messageID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load message: %v", ErrTransient, err)
	}
	return &message, nil
}

// Edit mutates content and stamps edited_at. Restricted to the original
// sender and to messages not already soft-deleted; both violations surface as
// ErrNotFound.
func (s *MessageStore) Edit(ctx context.Context, messageID, senderID uint, content string) (*model.Message, error) {
	content = SanitizeContent(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content empty after sanitization", ErrInvalidInput)
	}

	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND sender_id = ? AND deleted_at IS NULL", messageID, senderID).
		Updates(map[string]any{"content": content, "edited_at": now})
	if result.Error != nil {
		return nil, fmt.Errorf("%w: edit message: %v", ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	s.audit.Append(ctx, senderID, "message.edit", "message", strconv.FormatUint(uint64(messageID), 10), nil)
	return s.GetByID(ctx, messageID)
}

// Delete soft-deletes: content becomes the fixed placeholder and deleted_at
// is stamped. The row and id persist.
func (s *MessageStore) Delete(ctx context.Context, messageID, senderID uint) (*model.Message, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND sender_id = ? AND deleted_at IS NULL", messageID, senderID).
		Updates(map[string]any{"content": model.DeletedPlaceholder, "deleted_at": now})
	if result.Error != nil {
		return nil, fmt.Errorf("%w: delete message: %v", ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	s.audit.Append(ctx, senderID, "message.delete", "message", strconv.FormatUint(uint64(messageID), 10), nil)
	return s.GetByID(ctx, messageID)
}

// Cursor is the (createdAt, id) pair of the last item the caller saw. The id
// tie-break keeps paging deterministic when timestamps collide.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// ListByConversation returns up to limit messages strictly before the cursor
// under (created_at DESC, id DESC); with a nil cursor, the most recent limit
// messages. The cursor is caller-held, not session state.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID uint, limit int, cursor *Cursor) ([]model.Message, error) {
	query := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var messages []model.Message
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrTransient, err)
	}
	return messages, nil
}

// MarkRead upserts the (message, user) receipt with delivered and read stamps.
func (s *MessageStore) MarkRead(ctx context.Context, messageID, userID uint) error {
	now := time.Now()
	receipt := model.MessageReceipt{
		MessageID:   messageID,
		UserID:      userID,
		DeliveredAt: &now,
		ReadAt:      &now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"delivered_at": now, "read_at": now, "updated_at": now}),
		}).
		Create(&receipt).Error
	if err != nil {
		return fmt.Errorf("%w: mark read: %v", ErrTransient, err)
	}
	return nil
}

// MarkDelivered upserts the delivered stamp without touching read_at.
func (s *MessageStore) MarkDelivered(ctx context.Context, messageID, userID uint) error {
	now := time.Now()
	receipt := model.MessageReceipt{
		MessageID:   messageID,
		UserID:      userID,
		DeliveredAt: &now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"delivered_at": now, "updated_at": now}),
		}).
		Create(&receipt).Error
	if err != nil {
		return fmt.Errorf("%w: mark delivered: %v", ErrTransient, err)
	}
	return nil
}

// AddReaction upserts the (message, user, emoji) triple.
func (s *MessageStore) AddReaction(ctx context.Context, messageID, userID uint, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: empty emoji", ErrInvalidInput)
	}
	reaction := model.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
			DoNothing: true,
		}).
		Create(&reaction).Error
	if err != nil {
		return fmt.Errorf("%w: add reaction: %v", ErrTransient, err)
	}
	return nil
}

// RemoveReaction hard-deletes the triple.
func (s *MessageStore) RemoveReaction(ctx context.Context, messageID, userID uint, emoji string) error {
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&model.Reaction{}).Error
	if err != nil {
		return fmt.Errorf("%w: remove reaction: %v", ErrTransient, err)
	}
	return nil
}

// Search matches content within the given conversations. Callers are expected
// to have membership-checked every id in conversationIDs.
func (s *MessageStore) Search(ctx context.Context, query string, conversationIDs []uint, limit int) ([]model.Message, error) {
	if len(conversationIDs) == 0 {
		return []model.Message{}, nil
	}

	var messages []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ? AND deleted_at IS NULL", conversationIDs).
		Where("content LIKE ?", "%"+query+"%").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: search messages: %v", ErrTransient, err)
	}
	return messages, nil
}
