package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const sessionKeyPrefix = "portal:session:"

// CachedSessionStore is a read-through redis cache in front of another
// SessionStore. Cache failures fall back to the backing store.
type CachedSessionStore struct {
	next   SessionStore
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSessionStore wraps next with a cache whose entries live for ttl.
func NewCachedSessionStore(next SessionStore, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSessionStore{next: next, redis: rdb, ttl: ttl, logger: logger}
}

func (c *CachedSessionStore) buildKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func (c *CachedSessionStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	key := c.buildKey(id)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		sess := new(domain.Session)
		if err := json.Unmarshal(data, sess); err == nil {
			return sess, nil
		}
		c.logger.Warn("dropping corrupt cached session", "session_id", id)
		c.redis.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("session cache read failed", "error", err)
	}

	sess, err := c.next.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl
	if !sess.ExpiresAt.IsZero() {
		if remaining := time.Until(sess.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		data, err := json.Marshal(sess)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}
		if err := c.redis.SetEx(ctx, key, data, ttl).Err(); err != nil {
			c.logger.Warn("session cache write failed", "error", err)
		}
	}
	return sess, nil
}

// SaveToken writes through to the backing store and drops the cached entry.
func (c *CachedSessionStore) SaveToken(ctx context.Context, id uuid.UUID, token *oauth2.Token) error {
	if err := c.next.SaveToken(ctx, id, token); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, c.buildKey(id)).Err(); err != nil {
		c.logger.Warn("session cache invalidation failed", "session_id", id, "error", err)
	}
	return nil
}

// Ping checks both the cache and the backing store.
func (c *CachedSessionStore) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return c.next.Ping(ctx)
}
