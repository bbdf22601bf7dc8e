package postgres

import (
	"context"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/utils"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresChatRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresChatRepository(pool *pgxpool.Pool) ports.ChatRepository {
	return &PostgresChatRepository{pool: pool}
}

func (r *PostgresChatRepository) Insert(ctx context.Context, message *domain.ChatMessage) (*domain.ChatMessage, error) {
	stored := *message
	stored.ID = domain.MessageID(utils.GenerateMessageID())
	stored.CreatedAt = utils.Now()

	const query = `INSERT INTO watch_party_messages (id, party_id, user_id, username, avatar_url, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		string(stored.ID), string(stored.PartyID), string(stored.UserID),
		stored.Username, stored.AvatarURL, stored.Text, stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return &stored, nil
}

// ListByParty keeps the newest limit rows; seq breaks created_at ties in
// insertion order.
func (r *PostgresChatRepository) ListByParty(ctx context.Context, partyID domain.PartyID, limit int) ([]*domain.ChatMessage, error) {
	query := `SELECT id, user_id, username, avatar_url, message, created_at FROM (
			SELECT id, user_id, username, avatar_url, message, created_at, seq
			FROM watch_party_messages
			WHERE party_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) latest
		ORDER BY created_at, seq`

	var rowLimit interface{}
	if limit > 0 {
		rowLimit = limit
	}

	rows, err := r.pool.Query(ctx, query, string(partyID), rowLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.ChatMessage
	for rows.Next() {
		msg := &domain.ChatMessage{PartyID: partyID}
		var id, userID string
		if err := rows.Scan(&id, &userID, &msg.Username, &msg.AvatarURL, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.ID = domain.MessageID(id)
		msg.UserID = domain.UserID(userID)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
