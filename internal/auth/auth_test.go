package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/domain"
	"github.com/kuncarous/nextmu-remix/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	saved    []*oauth2.Token
}

func (f *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) SaveToken(_ context.Context, _ uuid.UUID, tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, tok)
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(tok *oauth2.Token, roles ...string) *domain.Session {
	return &domain.Session{
		ID:        uuid.New(),
		UserID:    "user-1",
		Name:      "Jamie",
		Roles:     roles,
		Token:     tok,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestAuthenticateCookieAndBearer(t *testing.T) {
	sess := newSession(&oauth2.Token{AccessToken: "a1", Expiry: time.Now().Add(time.Hour)}, "update:edit")
	fs := &fakeStore{sessions: map[uuid.UUID]*domain.Session{sess.ID: sess}}
	a := NewAuthenticator(fs, Options{CookieName: "__session", Logger: quiet()})

	req := httptest.NewRequest(http.MethodPost, "/api/update/start-upload", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: sess.ID.String()})
	p, method, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, MethodCookie, method)
	assert.Equal(t, "user-1", p.UserID)
	assert.True(t, p.HasRole("update:edit"))

	tok, err := p.TokenSource.Token()
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)

	req = httptest.NewRequest(http.MethodPost, "/api/update/start-upload", nil)
	req.Header.Set("Authorization", "Bearer "+sess.ID.String())
	p, method, err = a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, MethodBearer, method)
	assert.Equal(t, sess.ID, p.SessionID)
}

func TestAuthenticateFailures(t *testing.T) {
	valid := &oauth2.Token{AccessToken: "a1", Expiry: time.Now().Add(time.Hour)}
	expiredSession := newSession(valid)
	expiredSession.ExpiresAt = time.Now().Add(-time.Minute)
	expiredToken := newSession(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute)})
	noToken := newSession(nil)

	fs := &fakeStore{sessions: map[uuid.UUID]*domain.Session{
		expiredSession.ID: expiredSession,
		expiredToken.ID:   expiredToken,
		noToken.ID:        noToken,
	}}
	a := NewAuthenticator(fs, Options{Logger: quiet()})

	cases := []struct {
		name   string
		header string
		cookie string
		method Method
		want   error
	}{
		{"none", "", "", MethodNone, ErrNoCredentials},
		{"malformed", "Bearer not-a-uuid", "", MethodBearer, ErrInvalidSession},
		{"unknown", "", uuid.NewString(), MethodCookie, ErrInvalidSession},
		{"session expired", "Bearer " + expiredSession.ID.String(), "", MethodBearer, ErrSessionExpired},
		{"token expired without refresh config", "", expiredToken.ID.String(), MethodCookie, ErrSessionExpired},
		{"no token", "", noToken.ID.String(), MethodCookie, ErrSessionExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "__session", Value: tc.cookie})
			}
			_, method, err := a.Authenticate(req)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.method, method)
		})
	}
}

func TestExpiredTokenIsRefreshedAndPersisted(t *testing.T) {
	var calls int
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"a2","token_type":"Bearer","refresh_token":"r2","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	sess := newSession(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute)})
	fs := &fakeStore{sessions: map[uuid.UUID]*domain.Session{sess.ID: sess}}
	a := NewAuthenticator(fs, Options{
		Logger: quiet(),
		OAuth: &oauth2.Config{
			ClientID:     "portal",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenServer.URL, AuthStyle: oauth2.AuthStyleInParams},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sess.ID.String())
	p, _, err := a.Authenticate(req)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		tok, err := p.TokenSource.Token()
		require.NoError(t, err)
		assert.Equal(t, "a2", tok.AccessToken)
	}
	assert.Equal(t, 1, calls)
	require.Len(t, fs.saved, 1)
	assert.Equal(t, "r2", fs.saved[0].RefreshToken)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	p := &Principal{UserID: "u"}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Same(t, p, got)
}
