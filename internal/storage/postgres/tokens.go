package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository keeps rejoin tokens in the rejoin_tokens table. It
// satisfies client.TokenStore.
type TokenRepository struct {
	db *pgxpool.Pool
}

// NewTokenRepository creates a TokenRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the
// rejoin_tokens migration applied.
func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{db: db}
}

// SaveToken upserts the token for (userID, room).
//
// Postcondition: A later LoadToken for the same pair returns token.
func (r *TokenRepository) SaveToken(ctx context.Context, userID, room, token string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO rejoin_tokens (user_id, room_name, token)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, room_name)
		 DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`,
		userID, room, token,
	)
	if err != nil {
		return fmt.Errorf("saving rejoin token: %w", err)
	}
	return nil
}

// LoadToken returns the saved token and whether one exists.
func (r *TokenRepository) LoadToken(ctx context.Context, userID, room string) (string, bool, error) {
	var token string
	err := r.db.QueryRow(ctx,
		`SELECT token FROM rejoin_tokens WHERE user_id = $1 AND room_name = $2`,
		userID, room,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("loading rejoin token: %w", err)
	}
	return token, true, nil
}

// DeleteToken removes the token for (userID, room). A missing row is not
// an error.
func (r *TokenRepository) DeleteToken(ctx context.Context, userID, room string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM rejoin_tokens WHERE user_id = $1 AND room_name = $2`,
		userID, room,
	); err != nil {
		return fmt.Errorf("deleting rejoin token: %w", err)
	}
	return nil
}
