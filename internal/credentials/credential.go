package credentials

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies an external system category a tenant can connect.
type Provider string

const (
	// ProviderGoogle covers Gmail and Google Calendar.
	ProviderGoogle Provider = "google"
	// ProviderHubspot is the primary CRM integration.
	ProviderHubspot Provider = "hubspot"
	// ProviderZoho is the alternate CRM integration.
	ProviderZoho Provider = "zoho"
	// ProviderOdoo is the ERP integration (API key auth, no OAuth).
	ProviderOdoo Provider = "odoo"
)

// AllProviders lists every supported provider.
var AllProviders = []Provider{ProviderGoogle, ProviderHubspot, ProviderZoho, ProviderOdoo}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderHubspot, ProviderZoho, ProviderOdoo:
		return true
	}
	return false
}

// RequiresOAuth reports whether the provider's credentials expire and need
// refresh. Odoo uses a long-lived API key.
func (p Provider) RequiresOAuth() bool {
	return p != ProviderOdoo
}

// Credential is the stored integration credential for one (tenant,
// provider) pair. At most one active credential exists per pair.
type Credential struct {
	ID         int64     `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Provider   Provider  `json:"provider"`

	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`

	// AccountEmail is the connected account for OAuth providers (taken
	// from the Google id_token, or the portal account for HubSpot/Zoho).
	AccountEmail string `json:"account_email,omitempty"`

	// Endpoint holds provider-specific connection details: the Odoo
	// server URL, or a regional API domain for Zoho.
	Endpoint string `json:"endpoint,omitempty"`
	// AccountID holds the provider-side account identifier: Odoo database
	// name, HubSpot portal id, Zoho org id.
	AccountID string `json:"account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the credential expires inside the given
// window. Credentials without an expiry never do.
func (c *Credential) ExpiresWithin(window time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(window).After(c.ExpiresAt) || time.Now().Add(window).Equal(c.ExpiresAt)
}
