package slots

import (
	"fmt"
	"strings"

	"github.com/countplus7/wbot-backend-sub001/internal/intent"
)

// Values holds extracted slot name → value pairs. All values are strings;
// handlers parse them into provider shapes.
type Values map[string]string

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// IncompleteError reports that an intent is missing required slots. The
// dispatcher turns it into a recoverable outcome so the composer can ask a
// clarifying question instead of failing outright.
type IncompleteError struct {
	Tag     intent.Tag
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("intent %s missing required slots: %s", e.Tag, strings.Join(e.Missing, ", "))
}

// required lists the slot names each intent cannot dispatch without.
// Intents absent from the map have no hard requirements; documented
// defaults (meeting duration, ticket description) are applied during
// extraction instead.
var required = map[intent.Tag][]string{
	intent.EmailSend:        {"to", "body"},
	intent.CalendarSchedule: {"date", "time"},
	intent.CRMCreateLead:    {"name"},
	intent.CRMSearchContact: {"query"},
	intent.ERPOrder:         {"product", "quantity"},
	intent.ERPInvoiceStatus: {"invoice_id"},
}

// Required returns the required slot names for an intent.
func Required(tag intent.Tag) []string {
	return required[tag]
}

// Validate checks values against the intent's required-field set and
// returns an IncompleteError listing what is missing.
func Validate(tag intent.Tag, values Values) error {
	var missing []string
	for _, field := range required[tag] {
		if strings.TrimSpace(values[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &IncompleteError{Tag: tag, Missing: missing}
	}
	return nil
}
