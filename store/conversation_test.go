package store

import (
	"context"
	"testing"
	"time"

	"chat-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureMember(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	conversation, err := s.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)

	assert.NoError(t, s.EnsureMember(ctx, 10, conversation.ID))
	assert.NoError(t, s.EnsureMember(ctx, 20, conversation.ID))
	assert.ErrorIs(t, s.EnsureMember(ctx, 99, conversation.ID), ErrForbidden)

	// Archived membership is denied on the very next check.
	require.NoError(t, s.SetArchived(ctx, 20, conversation.ID, true))
	assert.ErrorIs(t, s.EnsureMember(ctx, 20, conversation.ID), ErrForbidden)

	require.NoError(t, s.SetArchived(ctx, 20, conversation.ID, false))
	assert.NoError(t, s.EnsureMember(ctx, 20, conversation.ID))
}

func TestCreateDirect(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	_, err := s.CreateDirect(ctx, 10, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	conversation, err := s.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationDirect, conversation.Kind)
	assert.Equal(t, 2, conversation.MemberCount)

	var members []model.ConversationMember
	require.NoError(t, db.Where("conversation_id = ?", conversation.ID).Find(&members).Error)
	require.Len(t, members, 2)
}

func TestCreateGroupDedupesMembers(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	_, err := s.CreateGroup(ctx, 10, "empty", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	conversation, err := s.CreateGroup(ctx, 10, "team", []uint{20, 20, 10, 30})
	require.NoError(t, err)
	assert.Equal(t, 3, conversation.MemberCount)

	var owner model.ConversationMember
	require.NoError(t, db.
		Where("conversation_id = ? AND user_id = ?", conversation.ID, 10).
		First(&owner).Error)
	assert.Equal(t, model.RoleOwner, owner.Role)
}

func TestListForUserCursor(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	first, err := s.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)
	second, err := s.CreateGroup(ctx, 10, "team", []uint{30})
	require.NoError(t, err)

	// Spread updated_at so the cursor has something to page on.
	require.NoError(t, db.Model(&model.Conversation{}).Where("id = ?", first.ID).
		Update("updated_at", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)).Error)
	require.NoError(t, db.Model(&model.Conversation{}).Where("id = ?", second.ID).
		Update("updated_at", time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)).Error)

	page, err := s.ListForUser(ctx, 10, 1, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	page, err = s.ListForUser(ctx, 10, 10, &page[0].UpdatedAt)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	// An archived conversation drops out of the listing.
	require.NoError(t, s.SetArchived(ctx, 10, first.ID, true))
	page, err = s.ListForUser(ctx, 10, 10, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestUpdateRole(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	conversation, err := s.CreateGroup(ctx, 10, "team", []uint{20, 30})
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateRole(ctx, 10, conversation.ID, 20, "root"), ErrInvalidInput)
	assert.ErrorIs(t, s.UpdateRole(ctx, 20, conversation.ID, 30, model.RoleAdmin), ErrForbidden)
	assert.ErrorIs(t, s.UpdateRole(ctx, 99, conversation.ID, 30, model.RoleAdmin), ErrForbidden)

	require.NoError(t, s.UpdateRole(ctx, 10, conversation.ID, 20, model.RoleAdmin))

	// A promoted admin may manage roles too.
	require.NoError(t, s.UpdateRole(ctx, 20, conversation.ID, 30, model.RoleAdmin))

	// The owner row itself is not reassignable.
	assert.ErrorIs(t, s.UpdateRole(ctx, 20, conversation.ID, 10, model.RoleMember), ErrNotFound)
}

func TestSetMuted(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	conversation, err := s.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)

	until := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetMuted(ctx, 10, conversation.ID, &until))

	var member model.ConversationMember
	require.NoError(t, db.
		Where("conversation_id = ? AND user_id = ?", conversation.ID, 10).
		First(&member).Error)
	require.NotNil(t, member.MutedUntil)

	// Clearing the deadline unmutes.
	require.NoError(t, s.SetMuted(ctx, 10, conversation.ID, nil))
	require.NoError(t, db.
		Where("conversation_id = ? AND user_id = ?", conversation.ID, 10).
		First(&member).Error)
	assert.Nil(t, member.MutedUntil)

	assert.ErrorIs(t, s.SetMuted(ctx, 99, conversation.ID, &until), ErrNotFound)
}

func TestAdvanceLastReadIsForwardOnly(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	conversation, err := s.CreateDirect(ctx, 10, 20)
	require.NoError(t, err)

	require.NoError(t, s.AdvanceLastRead(ctx, 10, conversation.ID, 5))
	require.NoError(t, s.AdvanceLastRead(ctx, 10, conversation.ID, 3))

	var member model.ConversationMember
	require.NoError(t, db.
		Where("conversation_id = ? AND user_id = ?", conversation.ID, 10).
		First(&member).Error)
	require.NotNil(t, member.LastReadMessageID)
	assert.Equal(t, uint(5), *member.LastReadMessageID)
}

func TestMemberIDsSkipsArchived(t *testing.T) {
	db := newTestDB(t)
	s := NewConversationStore(db, nil)
	ctx := context.Background()

	conversation, err := s.CreateGroup(ctx, 10, "team", []uint{20, 30})
	require.NoError(t, err)
	require.NoError(t, s.SetArchived(ctx, 30, conversation.ID, true))

	ids, err := s.MemberIDs(ctx, conversation.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{10, 20}, ids)
}
