package model

import "gorm.io/gorm"

// DeliveryDeadLetter is the terminal record of a delivery job that spent its
// attempt budget. It references a message but never owns it; writing a dead
// letter must not affect the message row.
type DeliveryDeadLetter struct {
	gorm.Model
	JobID          string `gorm:"not null;index" json:"job_id"`
	ConversationID uint   `gorm:"not null" json:"conversation_id"`
	MessageID      uint   `gorm:"not null;index" json:"message_id"`
	TargetUserID   uint   `gorm:"not null;index" json:"target_user_id"`
	Attempts       int    `gorm:"not null" json:"attempts"`
	Reason         string `gorm:"not null" json:"reason"`
}
