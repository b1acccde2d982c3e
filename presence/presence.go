package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker keeps ephemeral online markers in redis. Absence of the key means
// offline; a crashed process leaves nothing behind once the TTL lapses.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTracker creates a tracker. ttl must exceed the client heartbeat interval
// so periodic pings never flicker a user offline.
func NewTracker(client *redis.Client, ttl time.Duration) *Tracker {
	return &Tracker{client: client, ttl: ttl}
}

func key(userID uint) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// SetOnline writes or refreshes the TTL'd marker.
func (t *Tracker) SetOnline(ctx context.Context, userID uint) error {
	return t.client.Set(ctx, key(userID), "online", t.ttl).Err()
}

// SetOffline clears the marker immediately.
func (t *Tracker) SetOffline(ctx context.Context, userID uint) error {
	return t.client.Del(ctx, key(userID)).Err()
}

// IsOnline reports whether the marker is present and unexpired.
func (t *Tracker) IsOnline(ctx context.Context, userID uint) (bool, error) {
	value, err := t.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "online", nil
}
