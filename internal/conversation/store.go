package conversation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Store persists conversation turns. The dispatch subsystem only ever reads
// history; writes happen at the API boundary when messages arrive and when
// replies go out.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store instance
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append records one turn.
func (s *Store) Append(ctx context.Context, t *Turn) error {
	query := `
	INSERT INTO conversation_turns (business_id, channel_identity, role, text, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		t.BusinessID, t.ChannelIdentity, string(t.Role), t.Text,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	return nil
}

// Recent returns up to limit most recent turns for a (business, identity)
// pair in chronological order.
func (s *Store) Recent(ctx context.Context, businessID uuid.UUID, channelIdentity string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = HistoryWindow
	}

	query := `
	SELECT id, business_id, channel_identity, role, text, created_at
	FROM (
		SELECT id, business_id, channel_identity, role, text, created_at
		FROM conversation_turns
		WHERE business_id = $1 AND channel_identity = $2
		ORDER BY id DESC
		LIMIT $3
	) recent
	ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, businessID, channelIdentity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.BusinessID, &t.ChannelIdentity, &role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, &t)
	}

	return turns, rows.Err()
}
