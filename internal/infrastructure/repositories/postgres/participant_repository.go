package postgres

import (
	"context"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresParticipantRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresParticipantRepository(pool *pgxpool.Pool) ports.ParticipantRepository {
	return &PostgresParticipantRepository{pool: pool}
}

// Upsert never moves joined_at of an existing row.
func (r *PostgresParticipantRepository) Upsert(ctx context.Context, participant *domain.Participant) (bool, error) {
	const query = `INSERT INTO watch_party_participants (party_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (party_id, user_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query,
		string(participant.PartyID), string(participant.UserID), participant.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresParticipantRepository) Delete(ctx context.Context, partyID domain.PartyID, userID domain.UserID) error {
	const query = `DELETE FROM watch_party_participants WHERE party_id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, string(partyID), string(userID))
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (r *PostgresParticipantRepository) ListByParty(ctx context.Context, partyID domain.PartyID) ([]*domain.Participant, error) {
	const query = `SELECT user_id, joined_at FROM watch_party_participants
		WHERE party_id = $1
		ORDER BY joined_at, user_id`
	rows, err := r.pool.Query(ctx, query, string(partyID))
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		p := &domain.Participant{PartyID: partyID}
		var userID string
		if err := rows.Scan(&userID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.UserID = domain.UserID(userID)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
