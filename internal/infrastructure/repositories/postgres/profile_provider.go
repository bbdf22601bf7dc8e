package postgres

import (
	"context"
	"errors"
	"fmt"

	"watchparty/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresProfileProvider struct {
	pool *pgxpool.Pool
}

func NewPostgresProfileProvider(pool *pgxpool.Pool) *PostgresProfileProvider {
	return &PostgresProfileProvider{pool: pool}
}

func (p *PostgresProfileProvider) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	const query = `SELECT username, avatar_url FROM profiles WHERE user_id = $1`
	profile := &domain.Profile{UserID: userID}
	err := p.pool.QueryRow(ctx, query, string(userID)).Scan(&profile.Username, &profile.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

func (p *PostgresProfileProvider) PutProfile(ctx context.Context, profile domain.Profile) error {
	const query = `INSERT INTO profiles (user_id, username, avatar_url, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url, updated_at = NOW()`
	_, err := p.pool.Exec(ctx, query, string(profile.UserID), profile.Username, profile.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}
