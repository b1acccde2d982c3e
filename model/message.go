package model

import "time"

// DeletedPlaceholder replaces the content of soft-deleted messages. The row,
// id and thread position survive so reply references stay resolvable.
const DeletedPlaceholder = "[deleted]"

// Attachment tuples come from the object-storage collaborator and are stored
// verbatim; reachability of the URL is never validated here.
type Attachment struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message does not embed gorm.Model: DeletedAt here is the user-visible
// soft-delete timestamp and deleted rows must remain readable, which gorm's
// query-hiding soft delete would break.
type Message struct {
	ID              uint         `gorm:"primarykey" json:"id"`
	ConversationID  uint         `gorm:"not null;index:idx_messages_history,priority:1;uniqueIndex:idx_messages_client_key" json:"conversation_id"`
	SenderID        uint         `gorm:"not null;index" json:"sender_id"`
	ClientMessageID *string      `gorm:"uniqueIndex:idx_messages_client_key" json:"client_message_id"`
	Content         string       `gorm:"not null" json:"content"`
	ParentMessageID *uint        `gorm:"index" json:"parent_message_id"`
	Attachments     []Attachment `gorm:"serializer:json" json:"attachments"`
	CreatedAt       time.Time    `gorm:"index:idx_messages_history,priority:2,sort:desc" json:"created_at"`
	EditedAt        *time.Time   `json:"edited_at"`
	DeletedAt       *time.Time   `json:"deleted_at"`
}

func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

type MessageReceipt struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	MessageID   uint       `gorm:"not null;uniqueIndex:idx_receipt_message_user" json:"message_id"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_receipt_message_user" json:"user_id"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Reaction rows are hard-deleted on removal, so no soft-delete column.
type Reaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji" json:"user_id"`
	Emoji     string    `gorm:"not null;uniqueIndex:idx_reaction_message_user_emoji" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
