package faq

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Store persists FAQ entries per business.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store instance
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts an entry.
func (s *Store) Create(ctx context.Context, e *Entry) error {
	query := `
	INSERT INTO faq_entries (business_id, question, answer, created_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query, e.BusinessID, e.Question, e.Answer).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create faq entry: %w", err)
	}

	return nil
}

// Update rewrites question and answer of an existing entry.
func (s *Store) Update(ctx context.Context, e *Entry) error {
	query := `
	UPDATE faq_entries
	SET question = $1, answer = $2, updated_at = NOW()
	WHERE id = $3 AND business_id = $4
	RETURNING updated_at
	`

	err := s.db.QueryRowContext(ctx, query, e.Question, e.Answer, e.ID, e.BusinessID).
		Scan(&e.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("faq entry %s not found", e.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update faq entry: %w", err)
	}

	return nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (s *Store) Delete(ctx context.Context, businessID, id uuid.UUID) error {
	query := `DELETE FROM faq_entries WHERE id = $1 AND business_id = $2`

	if _, err := s.db.ExecContext(ctx, query, id, businessID); err != nil {
		return fmt.Errorf("failed to delete faq entry: %w", err)
	}

	return nil
}

// List returns all entries for a business in creation order.
func (s *Store) List(ctx context.Context, businessID uuid.UUID) ([]*Entry, error) {
	query := `
	SELECT id, business_id, question, answer, created_at, updated_at
	FROM faq_entries
	WHERE business_id = $1
	ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list faq entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.Question, &e.Answer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan faq entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
