package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/melodari/internal/models"
)

// TokenRepository stores one OAuth token pair per provider. It satisfies auth.TokenStore.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get returns the stored tokens for provider, or nil when none are stored.
func (r *TokenRepository) Get(ctx context.Context, provider models.Provider) (*models.Tokens, error) {
	query := `
		SELECT access_token, refresh_token, expires_in, expiry
		FROM tokens
		WHERE provider = ?
	`

	var (
		tokens models.Tokens
		expiry sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, string(provider)).Scan(&tokens.AccessToken, &tokens.RefreshToken, &tokens.ExpiresIn, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}

	if expiry.Valid {
		tokens.Expiry = expiry.Time
	}
	return &tokens, nil
}

// Set replaces the stored tokens for provider in a single statement.
func (r *TokenRepository) Set(ctx context.Context, provider models.Provider, tokens *models.Tokens) error {
	if tokens == nil {
		return r.Clear(ctx, provider)
	}

	query := `
		INSERT INTO tokens (provider, access_token, refresh_token, expires_in, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_in = excluded.expires_in,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`

	var expiry any
	if !tokens.Expiry.IsZero() {
		expiry = tokens.Expiry
	}

	_, err := r.db.ExecContext(ctx, query, string(provider), tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresIn, expiry, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// Clear deletes the stored tokens for provider.
func (r *TokenRepository) Clear(ctx context.Context, provider models.Provider) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM tokens WHERE provider = ?", string(provider)); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}
