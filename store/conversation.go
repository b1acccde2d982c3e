package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-service/model"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const listCacheTTL = 20 * time.Second

// ConversationStore owns conversations and their membership rows. EnsureMember
// is the single authorization gate for every conversation-scoped operation.
type ConversationStore struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewConversationStore creates the store. cache may be nil, in which case
// conversation listings are always read from the database.
func NewConversationStore(db *gorm.DB, cache *redis.Client) *ConversationStore {
	return &ConversationStore{db: db, cache: cache}
}

// EnsureMember reports ErrForbidden unless a non-archived membership row
// exists. It never caches: removed members must be denied on their very next
// action.
func (s *ConversationStore) EnsureMember(ctx context.Context, userID, conversationID uint) error {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND archived = ?", conversationID, userID, false).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("%w: membership lookup: %v", ErrTransient, err)
	}
	if count == 0 {
		return ErrForbidden
	}
	return nil
}

// CreateDirect creates a two-member direct conversation.
func (s *ConversationStore) CreateDirect(ctx context.Context, userA, userB uint) (*model.Conversation, error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: direct conversation with self", ErrInvalidInput)
	}

	conversation := model.Conversation{
		Kind:        model.ConversationDirect,
		OwnerID:     userA,
		MemberCount: 2,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		members := []model.ConversationMember{
			{ConversationID: conversation.ID, UserID: userA, Role: model.RoleOwner},
			{ConversationID: conversation.ID, UserID: userB, Role: model.RoleMember},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create direct conversation: %v", ErrTransient, err)
	}
	return &conversation, nil
}

// CreateGroup creates a group conversation owned by ownerID. The owner is
// always a member; duplicate member ids are collapsed.
func (s *ConversationStore) CreateGroup(ctx context.Context, ownerID uint, title string, memberIDs []uint) (*model.Conversation, error) {
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: group requires at least one member", ErrInvalidInput)
	}

	unique := []uint{ownerID}
	seen := map[uint]bool{ownerID: true}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	conversation := model.Conversation{
		Kind:        model.ConversationGroup,
		Title:       title,
		OwnerID:     ownerID,
		MemberCount: len(unique),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		members := make([]model.ConversationMember, 0, len(unique))
		for _, id := range unique {
			role := model.RoleMember
			if id == ownerID {
				role = model.RoleOwner
			}
			members = append(members, model.ConversationMember{
				ConversationID: conversation.ID,
				UserID:         id,
				Role:           role,
			})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create group conversation: %v", ErrTransient, err)
	}
	return &conversation, nil
}

// ListForUser pages the caller's non-archived conversations by updated_at
// descending, id descending, strictly before the cursor. Results are cached
// for a few seconds; staleness here only affects the inbox listing.
func (s *ConversationStore) ListForUser(ctx context.Context, userID uint, limit int, before *time.Time) ([]model.Conversation, error) {
	cacheKey := s.listCacheKey(userID, limit, before)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var conversations []model.Conversation
			if json.Unmarshal([]byte(cached), &conversations) == nil {
				return conversations, nil
			}
		}
	}

	query := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.user_id = ? AND conversation_members.archived = ?", userID, false)
	if before != nil {
		query = query.Where("conversations.updated_at < ?", *before)
	}

	var conversations []model.Conversation
	err := query.
		Order("conversations.updated_at DESC, conversations.id DESC").
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", ErrTransient, err)
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(conversations); err == nil {
			s.cache.Set(ctx, cacheKey, encoded, listCacheTTL)
		}
	}
	return conversations, nil
}

func (s *ConversationStore) listCacheKey(userID uint, limit int, before *time.Time) string {
	cursor := "first"
	if before != nil {
		cursor = before.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("conversation:list:%d:%d:%s", userID, limit, cursor)
}

// SetArchived flips the caller's own membership flag. Archival is the removal
// mechanism; the row itself is never deleted while membership is active.
func (s *ConversationStore) SetArchived(ctx context.Context, userID, conversationID uint, archived bool) error {
	result := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("archived", archived)
	if result.Error != nil {
		return fmt.Errorf("%w: archive membership: %v", ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMuted sets or clears the caller's mute deadline.
func (s *ConversationStore) SetMuted(ctx context.Context, userID, conversationID uint, until *time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("muted_until", until)
	if result.Error != nil {
		return fmt.Errorf("%w: mute membership: %v", ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRole changes a member's role. Only the conversation owner or an admin
// may do this, and the owner role itself is not reassignable here.
func (s *ConversationStore) UpdateRole(ctx context.Context, actorID, conversationID, targetUserID uint, role string) error {
	if role != model.RoleAdmin && role != model.RoleMember {
		return fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}

	var actor model.ConversationMember
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND archived = ?", conversationID, actorID, false).
		First(&actor).Error
	if err == gorm.ErrRecordNotFound {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("%w: member lookup: %v", ErrTransient, err)
	}
	if actor.Role != model.RoleOwner && actor.Role != model.RoleAdmin {
		return ErrForbidden
	}

	result := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND role <> ?", conversationID, targetUserID, model.RoleOwner).
		Update("role", role)
	if result.Error != nil {
		return fmt.Errorf("%w: update role: %v", ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceLastRead moves the member's read pointer forward, never backwards.
func (s *ConversationStore) AdvanceLastRead(ctx context.Context, userID, conversationID, messageID uint) error {
	err := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Where("last_read_message_id IS NULL OR last_read_message_id < ?", messageID).
		Update("last_read_message_id", messageID).Error
	if err != nil {
		return fmt.Errorf("%w: advance last read: %v", ErrTransient, err)
	}
	return nil
}

// MemberIDs returns the user ids of all non-archived members.
func (s *ConversationStore) MemberIDs(ctx context.Context, conversationID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND archived = ?", conversationID, false).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %v", ErrTransient, err)
	}
	return ids, nil
}
