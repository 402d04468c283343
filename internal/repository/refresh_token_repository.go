package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/the-outlaw-004/medai-backend/internal/model"
)

type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

func (r *RefreshTokenRepository) Store(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	const q = `
INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
VALUES ($1, $2, $3);
`
	if _, err := r.pool.Exec(ctx, q, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// ListActive returns the unexpired token rows for a user. The caller compares
// the presented token against each hash; bcrypt hashes are not lookup keys.
func (r *RefreshTokenRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*model.RefreshToken, error) {
	const q = `
SELECT id, user_id, token_hash, expires_at, created_at
FROM refresh_tokens
WHERE user_id = $1 AND expires_at > now();
`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*model.RefreshToken
	for rows.Next() {
		var t model.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

func (r *RefreshTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM refresh_tokens WHERE id = $1;`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *RefreshTokenRepository) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM refresh_tokens WHERE user_id = $1;`
	_, err := r.pool.Exec(ctx, q, userID)
	return err
}
