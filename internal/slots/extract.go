package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/countplus7/wbot-backend-sub001/internal/intent"
)

// Deterministic extraction over raw text. Pure and stateless: the same
// text and reference time always produce the same values. Extraction is
// best-effort; missing required fields are caught later by Validate.

var (
	emailRe     = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	subjectRe   = regexp.MustCompile(`(?i)\bsubject\b[:\s]+(.+?)(?:\bbody\b|$)`)
	bodyRe      = regexp.MustCompile(`(?i)\bbody\b[:\s]+(.+)$`)
	clock12Re   = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re   = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	invoiceRe   = regexp.MustCompile(`(?i)\b(?:invoice|inv)\b[\s#:.-]*([A-Za-z]*[-]?\d[\w-]*)`)
	quantityRe  = regexp.MustCompile(`\b(\d+)\s*(?:units?|pieces?|pcs|boxes?|x\b)?`)
	leadNameRe  = regexp.MustCompile(`(?i)\b(?:lead|contact|customer|client)\b(?:\s+(?:named|called|for))?\s+(.+)$`)
	searchRe    = regexp.MustCompile(`(?i)\b(?:find|search(?: for)?|look\s?up|get|show)\b\s+(?:the\s+)?(?:contact|customer|client|lead)?\s*(?:for\s+|named\s+|called\s+)?(.+)$`)
	productOfRe = regexp.MustCompile(`(?i)\b(?:units?|pieces?|pcs|boxes?)?\s*of\s+(.+)$`)
)

// stopMarkers bound free-text entity spans: a name or product ends where
// scheduling or meta vocabulary begins.
var stopMarkers = []string{
	"at", "on", "tomorrow", "today", "next", "for", "about", "by",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"am", "pm", "please", "asap",
}

// weekdayNames is scanned in slice order so resolution never depends on
// map iteration; ties are broken by position in the text.
var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"sunday", time.Sunday},
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
}

// DefaultMeetingDuration is applied when a scheduling request does not
// state one.
const DefaultMeetingDuration = 60

// Extract augments existing slot values with deterministic parses from the
// raw text. Values already present (from the classifier) are kept unless
// empty; deterministic parses fill the gaps. The reference time now
// anchors relative-date resolution.
func Extract(tag intent.Tag, text string, now time.Time, existing Values) Values {
	values := existing.Clone()
	if values == nil {
		values = Values{}
	}

	setIfEmpty := func(key, val string) {
		if strings.TrimSpace(values[key]) == "" && val != "" {
			values[key] = val
		}
	}

	switch tag {
	case intent.EmailSend:
		if addr := firstEmail(text); addr != "" {
			setIfEmpty("to", addr)
		}
		if m := subjectRe.FindStringSubmatch(text); m != nil {
			setIfEmpty("subject", strings.TrimSpace(m[1]))
		}
		if m := bodyRe.FindStringSubmatch(text); m != nil {
			setIfEmpty("body", strings.TrimSpace(m[1]))
		}
		setIfEmpty("subject", "(no subject)")

	case intent.EmailRead:
		// No slots needed; "unread" vs "recent" is a handler concern.
		if strings.Contains(strings.ToLower(text), "unread") {
			setIfEmpty("filter", "unread")
		}

	case intent.CalendarSchedule:
		if date, ok := ResolveDate(text, now); ok {
			setIfEmpty("date", date.Format("2006-01-02"))
		}
		if clock, ok := ResolveTime(text); ok {
			setIfEmpty("time", clock)
		}
		if minutes, ok := durationMinutes(text); ok {
			setIfEmpty("duration", strconv.Itoa(minutes))
		}
		setIfEmpty("duration", strconv.Itoa(DefaultMeetingDuration))
		setIfEmpty("title", entitySpanAfter(text, "meeting about", "meeting with", "call with", "about"))
		setIfEmpty("title", "Meeting")

	case intent.CalendarCheck:
		if date, ok := ResolveDate(text, now); ok {
			setIfEmpty("date", date.Format("2006-01-02"))
		}
		// Checking without a date means today.
		setIfEmpty("date", now.Format("2006-01-02"))

	case intent.CRMCreateLead:
		if addr := firstEmail(text); addr != "" {
			setIfEmpty("email", addr)
		}
		if m := leadNameRe.FindStringSubmatch(stripEmails(text)); m != nil {
			setIfEmpty("name", trimEntitySpan(m[1]))
		}

	case intent.CRMSearchContact:
		if m := searchRe.FindStringSubmatch(text); m != nil {
			setIfEmpty("query", trimEntitySpan(m[1]))
		}

	case intent.ERPOrder:
		if qty, ok := quantity(text); ok {
			setIfEmpty("quantity", strconv.Itoa(qty))
		}
		if m := productOfRe.FindStringSubmatch(text); m != nil {
			setIfEmpty("product", trimEntitySpan(m[1]))
		}

	case intent.ERPInvoiceStatus:
		if m := invoiceRe.FindStringSubmatch(text); m != nil {
			setIfEmpty("invoice_id", strings.TrimSpace(m[1]))
		}

	case intent.ERPCreateTicket:
		// The whole message is the ticket description by default.
		setIfEmpty("description", strings.TrimSpace(text))
	}

	return values
}

// firstEmail returns the first syntactically valid address in text.
func firstEmail(text string) string {
	return emailRe.FindString(text)
}

func stripEmails(text string) string {
	return emailRe.ReplaceAllString(text, "")
}

// ResolveDate resolves today/tomorrow/weekday references against now using
// the next-occurrence rule: a weekday name resolves to the upcoming date
// with that weekday, landing on today only when today is exactly that
// weekday. Resolution depends only on the calendar date of now, never the
// time of day.
func ResolveDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if strings.Contains(lower, "day after tomorrow") {
		return today.AddDate(0, 0, 2), true
	}
	if strings.Contains(lower, "tomorrow") {
		return today.AddDate(0, 0, 1), true
	}
	if strings.Contains(lower, "today") || strings.Contains(lower, "tonight") {
		return today, true
	}

	// When several weekday names appear, the first one mentioned wins.
	bestIdx := -1
	var bestDay time.Weekday
	for _, w := range weekdayNames {
		idx := strings.Index(lower, w.name)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx {
			bestIdx = idx
			bestDay = w.day
		}
	}
	if bestIdx < 0 {
		return time.Time{}, false
	}

	daysAhead := (int(bestDay) - int(today.Weekday()) + 7) % 7
	// "next monday" skips this week's occurrence; a bare weekday name
	// includes today when it matches exactly.
	if daysAhead == 0 && strings.HasSuffix(strings.TrimSpace(lower[:bestIdx]), "next") {
		daysAhead = 7
	}
	return today.AddDate(0, 0, daysAhead), true
}

// ResolveTime parses a clock reference into 24h "HH:MM". Handles "2pm",
// "2:30 pm" and already-24h "14:00" forms.
func ResolveTime(text string) (string, bool) {
	if m := clock12Re.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour < 1 || hour > 12 {
			return "", false
		}
		minute := 0
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				return "", false
			}
		}
		meridiem := strings.ToLower(m[3])
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	if m := clock24Re.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("%02d:%s", hour, m[2]), true
	}

	return "", false
}

var durationRe = regexp.MustCompile(`(?i)\bfor\s+(\d+)\s*(hours?|hrs?|minutes?|mins?)\b`)

func durationMinutes(text string) (int, bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "h") {
		n *= 60
	}
	return n, true
}

// quantity returns the first standalone integer that is not part of a
// clock reference.
func quantity(text string) (int, bool) {
	cleaned := clock12Re.ReplaceAllString(text, "")
	cleaned = clock24Re.ReplaceAllString(cleaned, "")

	m := quantityRe.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// entitySpanAfter returns the text following the first matching marker,
// trimmed at the first stop marker.
func entitySpanAfter(text string, markers ...string) string {
	lower := strings.ToLower(text)
	for _, marker := range markers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		span := text[idx+len(marker):]
		if trimmed := trimEntitySpan(span); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// trimEntitySpan cuts a free-text span at the first stop marker and strips
// trailing punctuation.
func trimEntitySpan(span string) string {
	words := strings.Fields(span)
	var kept []string
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:"))
		if isStopMarker(cleaned) {
			break
		}
		kept = append(kept, strings.Trim(word, ".,!?;:"))
	}
	return strings.Join(kept, " ")
}

func isStopMarker(word string) bool {
	for _, marker := range stopMarkers {
		if word == marker {
			return true
		}
	}
	return false
}
