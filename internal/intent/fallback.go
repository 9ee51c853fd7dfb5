package intent

import (
	"regexp"
	"strings"
)

// The fallback classifier is an ordered table of deterministic matchers,
// one per intent family. Matchers run in fixed priority order:
// email > calendar > CRM > ERP > FAQ, and the first non-nil match wins.
// The fixed ordering is a deliberate tie-break so that behavior stays
// deterministic and each matcher testable in isolation.

// matchConfidence is assigned to any keyword match. It sits above the
// classifier gate so a fallback result is always actionable.
const matchConfidence = 0.85

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Matcher is one deterministic intent-family detector. Match is pure:
// text in, intent or nil out.
type Matcher struct {
	Family string
	Match  func(text string) *Intent
}

// FallbackMatchers is the priority-ordered matcher table.
var FallbackMatchers = []Matcher{
	{Family: "email", Match: matchEmail},
	{Family: "calendar", Match: matchCalendar},
	{Family: "crm", Match: matchCRM},
	{Family: "erp", Match: matchERP},
	{Family: "faq", Match: matchFAQ},
}

// Fallback classifies text deterministically. It never fails: when no
// matcher fires the result is GENERAL with the 0.5 sentinel confidence.
func Fallback(text string) Intent {
	for _, m := range FallbackMatchers {
		if result := m.Match(text); result != nil {
			result.Source = "fallback"
			return *result
		}
	}
	return Intent{Tag: General, Confidence: FallbackConfidence, Slots: map[string]string{}, Source: "fallback"}
}

func containsAny(lower string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// matchEmail requires both a send-style verb and a syntactically valid
// address before claiming EMAIL_SEND, to keep false positives down on
// texts that merely mention an address.
func matchEmail(text string) *Intent {
	lower := strings.ToLower(text)

	hasAddress := emailRe.MatchString(text)
	sendVerb := containsAny(lower, "send", "email", "mail", "write to", "forward")
	if hasAddress && sendVerb {
		return &Intent{Tag: EmailSend, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	readVerb := containsAny(lower, "check", "read", "any new", "unread", "show")
	mailNoun := containsAny(lower, "email", "mail", "inbox", "messages")
	if readVerb && mailNoun {
		return &Intent{Tag: EmailRead, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	return nil
}

func matchCalendar(text string) *Intent {
	lower := strings.ToLower(text)

	eventNoun := containsAny(lower, "meeting", "appointment", "event", "call")
	scheduleVerb := containsAny(lower, "schedule", "book", "set up", "setup", "arrange", "plan")
	if scheduleVerb && eventNoun {
		return &Intent{Tag: CalendarSchedule, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	checkPhrase := containsAny(lower, "calendar", "agenda", "availability", "am i free", "my schedule")
	if checkPhrase {
		return &Intent{Tag: CalendarCheck, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	return nil
}

func matchCRM(text string) *Intent {
	lower := strings.ToLower(text)

	crmNoun := containsAny(lower, "lead", "contact", "customer", "client")
	if !crmNoun {
		return nil
	}

	createVerb := containsAny(lower, "add", "create", "new", "register", "save")
	if createVerb && containsAny(lower, "lead", "contact") {
		return &Intent{Tag: CRMCreateLead, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	searchVerb := containsAny(lower, "find", "search", "look up", "lookup", "get", "show")
	if searchVerb {
		return &Intent{Tag: CRMSearchContact, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	return nil
}

func matchERP(text string) *Intent {
	lower := strings.ToLower(text)

	if containsAny(lower, "invoice", "bill") && containsAny(lower, "status", "paid", "due", "check", "when") {
		return &Intent{Tag: ERPInvoiceStatus, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	if containsAny(lower, "order", "buy", "purchase") && containsAny(lower, "order", "units", "pieces", "qty", "quantity", "boxes") {
		return &Intent{Tag: ERPOrder, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	if containsAny(lower, "ticket", "issue", "complaint", "problem with", "not working", "broken") {
		if containsAny(lower, "open", "create", "raise", "file", "report", "ticket") {
			return &Intent{Tag: ERPCreateTicket, Confidence: matchConfidence, Slots: map[string]string{}}
		}
	}

	return nil
}

// matchFAQ fires on question-shaped texts about the business itself.
func matchFAQ(text string) *Intent {
	lower := strings.ToLower(strings.TrimSpace(text))

	questionShape := strings.HasSuffix(lower, "?") ||
		containsAny(lower, "what is", "what are", "how do", "how much", "when do", "where")
	businessTopic := containsAny(lower, "hours", "open", "price", "cost", "location", "address", "deliver", "return policy", "warranty")

	if questionShape && businessTopic {
		return &Intent{Tag: FAQ, Confidence: matchConfidence, Slots: map[string]string{}}
	}

	return nil
}
