package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrResetTokenInvalid is returned when a reset token is unknown or expired.
var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

const resetKeyPrefix = "pwreset:"

// ResetStore holds single-use password reset tokens in Redis with a TTL.
type ResetStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResetStore(client *redis.Client, ttl time.Duration) *ResetStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ResetStore{client: client, ttl: ttl}
}

// Issue creates a reset token bound to the user ID.
func (s *ResetStore) Issue(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, resetKeyPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing reset token: %w", err)
	}
	return token, nil
}

// Consume validates a token and deletes it, returning the bound user ID.
// A token can be consumed at most once.
func (s *ResetStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consuming reset token: %w", err)
	}
	return userID, nil
}
