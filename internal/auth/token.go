package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/store"
)

// persistingTokenSource saves every token the base source refreshes back to
// the session store, so the next request starts from the new token.
type persistingTokenSource struct {
	base    oauth2.TokenSource
	id      uuid.UUID
	store   store.SessionStore
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.store.SaveToken(ctx, p.id, tok); err != nil {
		// The refreshed token is still usable for this request.
		p.logger.Warn("failed to persist refreshed token", "session_id", p.id, "error", err)
		return tok, nil
	}
	p.last = tok.AccessToken
	p.logger.Info("access token refreshed", "session_id", p.id, "expiry", tok.Expiry)
	return tok, nil
}
