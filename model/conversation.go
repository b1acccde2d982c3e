package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Conversation struct {
	gorm.Model
	Kind          string     `gorm:"not null;index" json:"kind"`
	Title         string     `json:"title"`
	OwnerID       uint       `gorm:"not null;index" json:"owner_id"`
	MemberCount   int        `gorm:"not null;default:0" json:"member_count"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
}

// ConversationMember is never deleted while membership is active; removal is
// the Archived flag, which takes effect on the member's next action.
type ConversationMember struct {
	gorm.Model
	ConversationID    uint       `gorm:"not null;uniqueIndex:idx_member_conversation_user" json:"conversation_id"`
	UserID            uint       `gorm:"not null;uniqueIndex:idx_member_conversation_user;index" json:"user_id"`
	Role              string     `gorm:"not null;default:member" json:"role"`
	LastReadMessageID *uint      `json:"last_read_message_id"`
	MutedUntil        *time.Time `json:"muted_until"`
	Archived          bool       `gorm:"not null;default:false" json:"archived"`
}
