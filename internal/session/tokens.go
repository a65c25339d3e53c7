// Package session owns the single-use anti-forgery token shared between the
// initiation and completion legs of a redirect flow. The lifecycle is
// create → store → read-once → delete; a consumed or expired token is gone for
// good and the round trip must be restarted.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoToken indicates no token is stored for the scope: either none was
// issued, it expired, or it was already consumed.
var ErrNoToken = errors.New("session: no token stored for scope")

const defaultPrefix = "ddsession"

// Store issues and consumes redirect-flow session tokens backed by Redis.
// One token exists per scope; re-issuing overwrites, never queues.
type Store struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

// Issue stores a fresh random token for the scope and returns it. Any token
// previously stored for the scope is replaced.
func (s Store) Issue(ctx context.Context, scope string) (string, error) {
	if s.R == nil {
		return "", errors.New("session: redis client not configured")
	}
	token := uuid.NewString()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if err := s.R.Set(ctx, s.key(scope), token, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume returns the stored token and deletes it atomically. The deletion
// happens whether or not the caller goes on to use the token: the round trip
// is single-use.
func (s Store) Consume(ctx context.Context, scope string) (string, error) {
	if s.R == nil {
		return "", errors.New("session: redis client not configured")
	}
	token, err := s.R.GetDel(ctx, s.key(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Clear removes the stored token for the scope, if any.
func (s Store) Clear(ctx context.Context, scope string) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	return s.R.Del(ctx, s.key(scope)).Err()
}

func (s Store) key(scope string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + ":" + scope
}
