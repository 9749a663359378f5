package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

//go:embed schema.sql
var schema string

// PostgresStore implements SessionStore using a PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database using the provided connection string.
func NewPostgresStore(ctx context.Context, conn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(conn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the sessions table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, user_id, display_name, roles, access_token, refresh_token,
		       token_type, token_expiry, expires_at
		FROM portal_sessions
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)

	var sess domain.Session
	var accessToken, refreshToken, tokenType string
	var tokenExpiry *time.Time
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Name,
		&sess.Roles,
		&accessToken,
		&refreshToken,
		&tokenType,
		&tokenExpiry,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if accessToken != "" || refreshToken != "" {
		sess.Token = &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    tokenType,
		}
		if tokenExpiry != nil {
			sess.Token.Expiry = *tokenExpiry
		}
	}
	return &sess, nil
}

// SaveToken stores a refreshed token. An empty refresh token keeps the
// stored one, since providers do not always rotate it.
func (s *PostgresStore) SaveToken(ctx context.Context, id uuid.UUID, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("save token: nil token")
	}
	query := `
		UPDATE portal_sessions
		SET access_token = $2,
		    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
		    token_type = $4,
		    token_expiry = $5,
		    updated_at = now()
		WHERE id = $1
	`
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		expiry = &token.Expiry
	}
	tag, err := s.pool.Exec(ctx, query, id, token.AccessToken, token.RefreshToken, token.Type(), expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
