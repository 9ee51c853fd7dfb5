package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Status values for a business tenant.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Business is an isolated tenant. Every credential, conversation and
// dispatch decision is scoped to one business.
type Business struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	// PhoneNumberID is the WhatsApp Business phone number id that inbound
	// webhook payloads carry; it is how a delivery is mapped to a tenant.
	PhoneNumberID string    `json:"phone_number_id"`
	Tone          string    `json:"tone"` // reply tone, e.g. "friendly", "formal"
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Active reports whether the tenant may process messages.
func (b *Business) Active() bool {
	return b.Status == StatusActive
}
