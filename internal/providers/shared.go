package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/slots"
)

// Action names the concrete operation a handler performs. The dispatcher
// owns the intent → (provider, action) table; handlers switch on these.
type Action string

const (
	ActionEmailSend     Action = "email.send"
	ActionEmailRead     Action = "email.read"
	ActionEventCreate   Action = "calendar.create"
	ActionEventList     Action = "calendar.list"
	ActionLeadCreate    Action = "crm.lead.create"
	ActionContactSearch Action = "crm.contact.search"
	ActionOrderCreate   Action = "erp.order.create"
	ActionInvoiceStatus Action = "erp.invoice.status"
	ActionTicketCreate  Action = "erp.ticket.create"
)

// Result is a normalized handler outcome. Summary is human-oriented text
// the composer builds the reply from; Data carries structured extras.
type Result struct {
	Summary string            `json:"summary"`
	Data    map[string]string `json:"data,omitempty"`
}

// Handler executes actions against one external provider using a
// tenant-scoped credential. Implementations must be safely re-callable:
// a timed-out call may still complete out-of-band.
type Handler interface {
	Provider() credentials.Provider
	Execute(ctx context.Context, cred *credentials.Credential, action Action, values slots.Values) (*Result, error)
}

// ErrAuth signals the provider rejected the access token. The dispatcher
// responds with a single forced refresh before giving up.
var ErrAuth = errors.New("provider rejected credential")

// ValidationError wraps a provider 4xx caused by bad input. Never retried;
// surfaced to the user as something they can fix.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validation builds a ValidationError.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
