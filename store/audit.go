package store

import (
	"context"
	"fmt"
	"log"

	"chat-service/model"

	"gorm.io/gorm"
)

// AuditSink appends audit entries best-effort: a failed append is logged and
// swallowed, never surfaced to the user.
type AuditSink struct {
	db *gorm.DB
}

func NewAuditSink(db *gorm.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (a *AuditSink) Append(ctx context.Context, actorID uint, action, entityType, entityID string, metadata map[string]any) {
	entry := model.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
	}
	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("audit append failed: action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// List returns the most recent entries for operator inspection.
func (a *AuditSink) List(ctx context.Context, limit int) ([]model.AuditLog, error) {
	var entries []model.AuditLog
	err := a.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list audit log: %v", ErrTransient, err)
	}
	return entries, nil
}
