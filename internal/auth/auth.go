package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/store"
)

var (
	// ErrNoCredentials indicates the request carried no session id.
	ErrNoCredentials = errors.New("no session credentials")

	// ErrInvalidSession indicates the session id is malformed or unknown.
	ErrInvalidSession = errors.New("invalid session")

	// ErrSessionExpired indicates the session or its access token can no
	// longer be used.
	ErrSessionExpired = errors.New("session expired")
)

// Method is how a request presented its session.
type Method int

const (
	MethodNone Method = iota
	MethodCookie
	MethodBearer
)

// Principal is the authenticated caller of a gateway request.
type Principal struct {
	SessionID uuid.UUID
	UserID    string
	Name      string
	Roles     []string
	Method    Method

	// TokenSource yields the access token forwarded to update services.
	TokenSource oauth2.TokenSource
}

// HasRole reports whether the principal was granted role.
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// Options configures an Authenticator.
type Options struct {
	CookieName string

	// OAuth enables refreshing expired access tokens. Without it an expired
	// token expires the session.
	OAuth *oauth2.Config

	Logger *slog.Logger
}

// Authenticator resolves portal sessions from incoming requests.
type Authenticator struct {
	sessions   store.SessionStore
	cookieName string
	oauth      *oauth2.Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewAuthenticator creates an Authenticator backed by sessions.
func NewAuthenticator(sessions store.SessionStore, opts Options) *Authenticator {
	if opts.CookieName == "" {
		opts.CookieName = "__session"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Authenticator{
		sessions:   sessions,
		cookieName: opts.CookieName,
		oauth:      opts.OAuth,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Authenticate resolves the principal of r. The returned Method is set even
// on failure so callers can choose between a redirect and a 401.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, Method, error) {
	raw, method := a.credentials(r)
	if method == MethodNone {
		return nil, method, ErrNoCredentials
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, method, ErrInvalidSession
	}

	ctx := r.Context()
	sess, err := a.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, method, ErrInvalidSession
		}
		return nil, method, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(a.now()) {
		return nil, method, ErrSessionExpired
	}
	if sess.Token == nil || (sess.Token.AccessToken == "" && sess.Token.RefreshToken == "") {
		return nil, method, ErrSessionExpired
	}

	var ts oauth2.TokenSource
	switch {
	case a.oauth != nil && sess.Token.RefreshToken != "":
		ts = &persistingTokenSource{
			base:    a.oauth.TokenSource(context.WithoutCancel(ctx), sess.Token),
			last:    sess.Token.AccessToken,
			id:      id,
			store:   a.sessions,
			logger:  a.logger,
			timeout: 5 * time.Second,
		}
	case sess.Token.Valid():
		ts = oauth2.StaticTokenSource(sess.Token)
	default:
		return nil, method, ErrSessionExpired
	}

	return &Principal{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		Name:        sess.Name,
		Roles:       sess.Roles,
		Method:      method,
		TokenSource: ts,
	}, method, nil
}

// credentials prefers an explicit bearer header over the cookie.
func (a *Authenticator) credentials(r *http.Request) (string, Method) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token), MethodBearer
		}
	}
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value, MethodCookie
	}
	return "", MethodNone
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
