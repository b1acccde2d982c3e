package model

import "gorm.io/gorm"

type AuditLog struct {
	gorm.Model
	ActorID    uint           `gorm:"not null;index" json:"actor_id"`
	Action     string         `gorm:"not null;index" json:"action"`
	EntityType string         `gorm:"not null" json:"entity_type"`
	EntityID   string         `gorm:"not null" json:"entity_id"`
	Metadata   map[string]any `gorm:"serializer:json" json:"metadata"`
}
