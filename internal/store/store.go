package store

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// SessionStore defines persistence behavior for portal sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	SaveToken(ctx context.Context, id uuid.UUID, token *oauth2.Token) error
	Ping(ctx context.Context) error
}
