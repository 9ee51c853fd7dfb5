package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store provides methods to store and retrieve businesses
type Store struct {
	db *sql.DB
}

// NewStore creates a new store instance
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new business record
func (s *Store) Create(ctx context.Context, b *Business) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = StatusActive
	}

	query := `
	INSERT INTO businesses (id, name, phone_number_id, tone, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		b.ID, b.Name, b.PhoneNumberID, b.Tone, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}

	log.Info().
		Str("business_id", b.ID.String()).
		Str("phone_number_id", b.PhoneNumberID).
		Msg("Created business")

	return nil
}

// GetByID retrieves a business by id
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Business, error) {
	query := `
	SELECT id, name, phone_number_id, tone, status, created_at, updated_at
	FROM businesses
	WHERE id = $1
	`

	var b Business
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.PhoneNumberID, &b.Tone, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("business not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	return &b, nil
}

// GetByPhoneNumberID resolves the tenant owning a WhatsApp phone number id.
func (s *Store) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Business, error) {
	query := `
	SELECT id, name, phone_number_id, tone, status, created_at, updated_at
	FROM businesses
	WHERE phone_number_id = $1
	`

	var b Business
	err := s.db.QueryRowContext(ctx, query, phoneNumberID).Scan(
		&b.ID, &b.Name, &b.PhoneNumberID, &b.Tone, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("business not found for phone number id: %s", phoneNumberID)
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	return &b, nil
}

// SetStatus soft-enables or soft-disables a tenant.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
	UPDATE businesses SET status = $2, updated_at = NOW() WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update business status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("business not found: %s", id)
	}

	return nil
}

// List returns all businesses ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Business, error) {
	query := `
	SELECT id, name, phone_number_id, tone, status, created_at, updated_at
	FROM businesses
	ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []*Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.PhoneNumberID, &b.Tone, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, &b)
	}

	return businesses, rows.Err()
}
