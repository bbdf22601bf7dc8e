package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresPartyRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPartyRepository(pool *pgxpool.Pool) ports.PartyRepository {
	return &PostgresPartyRepository{pool: pool}
}

const partyColumns = `id, room_name, creator_id, content_id, content_type,
	is_playing, current_time_seconds, last_updated, created_at`

func scanParty(row pgx.Row) (*domain.Party, error) {
	var p domain.Party
	var id, creator string
	err := row.Scan(&id, &p.RoomName, &creator, &p.ContentID, &p.ContentType,
		&p.IsPlaying, &p.CurrentTime, &p.LastUpdated, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPartyNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ID = domain.PartyID(id)
	p.CreatorID = domain.UserID(creator)
	return &p, nil
}

func (r *PostgresPartyRepository) Create(ctx context.Context, party *domain.Party) (err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "insert", "watch_parties")
	defer func() { tracing.End(span, err) }()

	const query = `INSERT INTO watch_parties (` + partyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.pool.Exec(ctx, query,
		string(party.ID), party.RoomName, string(party.CreatorID), party.ContentID, party.ContentType,
		party.IsPlaying, party.CurrentTime, party.LastUpdated, party.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("party already exists: %s", party.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert party: %w", err)
	}
	return nil
}

func (r *PostgresPartyRepository) GetByID(ctx context.Context, id domain.PartyID) (*domain.Party, error) {
	const query = `SELECT ` + partyColumns + ` FROM watch_parties WHERE id = $1`
	party, err := scanParty(r.pool.QueryRow(ctx, query, string(id)))
	if err != nil && !errors.Is(err, domain.ErrPartyNotFound) {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	return party, err
}

func (r *PostgresPartyRepository) UpdatePlayback(ctx context.Context, id domain.PartyID, state domain.PlaybackState, at time.Time) (_ *domain.Party, err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "update", "watch_parties")
	defer func() { tracing.End(span, err) }()

	const query = `UPDATE watch_parties
		SET current_time_seconds = $2, is_playing = $3, last_updated = $4
		WHERE id = $1
		RETURNING ` + partyColumns
	party, err := scanParty(r.pool.QueryRow(ctx, query, string(id), state.CurrentTime, state.IsPlaying, at))
	if err != nil && !errors.Is(err, domain.ErrPartyNotFound) {
		return nil, fmt.Errorf("failed to update party: %w", err)
	}
	return party, err
}
