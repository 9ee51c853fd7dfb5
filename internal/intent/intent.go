package intent

import "math"

// Tag is one workflow from the closed taxonomy. Classification output is
// validated against this set; anything else is treated as a classifier
// failure, never passed through.
type Tag string

const (
	EmailSend        Tag = "EMAIL_SEND"
	EmailRead        Tag = "EMAIL_READ"
	CalendarSchedule Tag = "CALENDAR_SCHEDULE"
	CalendarCheck    Tag = "CALENDAR_CHECK"
	CRMCreateLead    Tag = "CRM_CREATE_LEAD"
	CRMSearchContact Tag = "CRM_SEARCH_CONTACT"
	ERPOrder         Tag = "ERP_ORDER"
	ERPInvoiceStatus Tag = "ERP_INVOICE_STATUS"
	ERPCreateTicket  Tag = "ERP_CREATE_TICKET"
	FAQ              Tag = "FAQ"
	General          Tag = "GENERAL"
)

// Taxonomy lists every valid tag.
var Taxonomy = []Tag{
	EmailSend, EmailRead,
	CalendarSchedule, CalendarCheck,
	CRMCreateLead, CRMSearchContact,
	ERPOrder, ERPInvoiceStatus, ERPCreateTicket,
	FAQ, General,
}

// Valid reports whether t belongs to the taxonomy.
func (t Tag) Valid() bool {
	for _, known := range Taxonomy {
		if t == known {
			return true
		}
	}
	return false
}

// FallbackConfidence is the sentinel confidence of the GENERAL result when
// no fallback matcher fires: no specific workflow detected, not an error.
const FallbackConfidence = 0.5

// Intent is the classified workflow for one message, produced fresh per
// message and never persisted as authoritative state.
type Intent struct {
	Tag        Tag               `json:"tag"`
	Confidence float64           `json:"confidence"`
	Slots      map[string]string `json:"slots"`
	// Source records which path produced the result: "classifier" or
	// "fallback".
	Source string `json:"source"`
}

// ValidConfidence reports whether c is a finite number in [0,1].
func ValidConfidence(c float64) bool {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return false
	}
	return c >= 0 && c <= 1
}
