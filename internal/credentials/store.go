package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store persists integration credentials, one row per (business, provider).
// Tokens are sealed before insert and opened on read.
type Store struct {
	db     *sql.DB
	sealer *Sealer
}

// NewStore creates a new store instance
func NewStore(db *sql.DB, sealer *Sealer) *Store {
	return &Store{db: db, sealer: sealer}
}

// Get returns the credential for a (business, provider) pair, or nil when
// the tenant has not connected the provider.
func (s *Store) Get(ctx context.Context, businessID uuid.UUID, provider Provider) (*Credential, error) {
	query := `
	SELECT id, business_id, provider, access_token, refresh_token, expires_at,
	       account_email, endpoint, account_id, created_at, updated_at
	FROM integration_credentials
	WHERE business_id = $1 AND provider = $2
	`

	var c Credential
	var prov string
	var accessToken, refreshToken string
	var expiresAt sql.NullTime
	var accountEmail, endpoint, accountID sql.NullString

	err := s.db.QueryRowContext(ctx, query, businessID, string(provider)).Scan(
		&c.ID, &c.BusinessID, &prov, &accessToken, &refreshToken, &expiresAt,
		&accountEmail, &endpoint, &accountID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	c.Provider = Provider(prov)
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	c.AccountEmail = accountEmail.String
	c.Endpoint = endpoint.String
	c.AccountID = accountID.String

	if c.AccessToken, err = s.sealer.Open(accessToken); err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	if c.RefreshToken, err = s.sealer.Open(refreshToken); err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}

	return &c, nil
}

// Upsert stores a credential, replacing any prior row for the same
// (business, provider) pair atomically. Idempotent: repeating the same
// upsert leaves one row with the same values.
func (s *Store) Upsert(ctx context.Context, c *Credential) error {
	if !c.Provider.Valid() {
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}

	accessToken, err := s.sealer.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refreshToken, err := s.sealer.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	var expiresAt interface{}
	if !c.ExpiresAt.IsZero() {
		expiresAt = c.ExpiresAt
	}

	query := `
	INSERT INTO integration_credentials (
		business_id, provider, access_token, refresh_token, expires_at,
		account_email, endpoint, account_id, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	ON CONFLICT (business_id, provider) DO UPDATE SET
		access_token = EXCLUDED.access_token,
		refresh_token = EXCLUDED.refresh_token,
		expires_at = EXCLUDED.expires_at,
		account_email = EXCLUDED.account_email,
		endpoint = EXCLUDED.endpoint,
		account_id = EXCLUDED.account_id,
		updated_at = NOW()
	RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		c.BusinessID, string(c.Provider), accessToken, refreshToken, expiresAt,
		nullable(c.AccountEmail), nullable(c.Endpoint), nullable(c.AccountID),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	log.Info().
		Str("business_id", c.BusinessID.String()).
		Str("provider", string(c.Provider)).
		Time("expires_at", c.ExpiresAt).
		Msg("Stored integration credential")

	return nil
}

// Delete removes the credential for a (business, provider) pair. Deleting
// a missing credential is not an error.
func (s *Store) Delete(ctx context.Context, businessID uuid.UUID, provider Provider) error {
	query := `
	DELETE FROM integration_credentials WHERE business_id = $1 AND provider = $2
	`

	if _, err := s.db.ExecContext(ctx, query, businessID, string(provider)); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	log.Info().
		Str("business_id", businessID.String()).
		Str("provider", string(provider)).
		Msg("Deleted integration credential")

	return nil
}

// ListExpiring returns OAuth credentials expiring within the window,
// for the background refresh sweep.
func (s *Store) ListExpiring(ctx context.Context, deadline time.Time) ([]*Credential, error) {
	query := `
	SELECT business_id, provider
	FROM integration_credentials
	WHERE expires_at IS NOT NULL AND expires_at <= $1
	`

	rows, err := s.db.QueryContext(ctx, query, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		var c Credential
		var prov string
		if err := rows.Scan(&c.BusinessID, &prov); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		c.Provider = Provider(prov)
		creds = append(creds, &c)
	}

	return creds, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
