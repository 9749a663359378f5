package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

type memoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	gets     int
}

func (m *memoryStore) GetSession(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStore) SaveToken(_ context.Context, id uuid.UUID, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Token = token
	return nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func newCache(t *testing.T, next SessionStore) (*CachedSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCachedSessionStore(next, rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestCachedSessionStoreReadsThrough(t *testing.T) {
	id := uuid.New()
	backing := &memoryStore{sessions: map[uuid.UUID]*domain.Session{
		id: {
			ID:        id,
			UserID:    "user-1",
			Roles:     []string{"update:edit"},
			Token:     &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"},
			ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		},
	}}
	cache, mr := newCache(t, backing)
	ctx := context.Background()

	first, err := cache.GetSession(ctx, id)
	require.NoError(t, err)
	second, err := cache.GetSession(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.gets)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, "a1", second.Token.AccessToken)
	assert.True(t, second.HasRole("update:edit"))
	assert.True(t, mr.Exists(sessionKeyPrefix+id.String()))
	assert.LessOrEqual(t, mr.TTL(sessionKeyPrefix+id.String()), time.Minute)
}

func TestCachedSessionStoreInvalidatesOnSaveToken(t *testing.T) {
	id := uuid.New()
	backing := &memoryStore{sessions: map[uuid.UUID]*domain.Session{
		id: {ID: id, UserID: "user-1", Token: &oauth2.Token{AccessToken: "old"}},
	}}
	cache, mr := newCache(t, backing)
	ctx := context.Background()

	_, err := cache.GetSession(ctx, id)
	require.NoError(t, err)
	require.True(t, mr.Exists(sessionKeyPrefix+id.String()))

	require.NoError(t, cache.SaveToken(ctx, id, &oauth2.Token{AccessToken: "new"}))
	assert.False(t, mr.Exists(sessionKeyPrefix+id.String()))

	sess, err := cache.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", sess.Token.AccessToken)
	assert.Equal(t, 2, backing.gets)
}

func TestCachedSessionStoreMissing(t *testing.T) {
	cache, _ := newCache(t, &memoryStore{sessions: map[uuid.UUID]*domain.Session{}})
	_, err := cache.GetSession(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCachedSessionStoreSurvivesRedisOutage(t *testing.T) {
	id := uuid.New()
	backing := &memoryStore{sessions: map[uuid.UUID]*domain.Session{id: {ID: id, UserID: "user-1"}}}
	cache, mr := newCache(t, backing)
	mr.Close()

	sess, err := cache.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Error(t, cache.Ping(context.Background()))
}

func TestCachedSessionStoreDropsCorruptEntries(t *testing.T) {
	id := uuid.New()
	backing := &memoryStore{sessions: map[uuid.UUID]*domain.Session{id: {ID: id, UserID: "user-1"}}}
	cache, mr := newCache(t, backing)
	require.NoError(t, mr.Set(sessionKeyPrefix+id.String(), "{not json"))

	sess, err := cache.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, 1, backing.gets)
}
