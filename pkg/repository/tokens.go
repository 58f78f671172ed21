package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/satymtripathi/microbiology/pkg/logger"
)

// TokenRepository records session tokens ended by logout until they expire
type TokenRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sql.DB, log *logger.Logger) *TokenRepository {
	return &TokenRepository{
		db:     db,
		logger: log,
	}
}

// Revoke marks a token as logged out. Revoking twice is not an error.
func (r *TokenRepository) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`,
		tokenID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token was logged out
func (r *TokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return revoked, nil
}

// PurgeExpired drops revocations whose token has expired anyway
func (r *TokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		r.logger.WithField("purged", n).Debug("Purged expired token revocations")
	}
	return n, nil
}
