package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackEmailSendRequiresVerbAndAddress(t *testing.T) {
	result := Fallback("please send an email to a@b.com about the delivery")
	assert.Equal(t, EmailSend, result.Tag)
	assert.Equal(t, matchConfidence, result.Confidence)
	assert.Equal(t, "fallback", result.Source)

	// An address alone, with no send verb, must not trigger EMAIL_SEND.
	result = Fallback("my address is a@b.com")
	assert.NotEqual(t, EmailSend, result.Tag)
}

func TestFallbackEmailRead(t *testing.T) {
	result := Fallback("can you check my inbox for anything new")
	assert.Equal(t, EmailRead, result.Tag)
}

func TestFallbackCalendar(t *testing.T) {
	assert.Equal(t, CalendarSchedule, Fallback("schedule a meeting tomorrow at 2pm").Tag)
	assert.Equal(t, CalendarCheck, Fallback("what's on my calendar today").Tag)
	assert.Equal(t, CalendarCheck, Fallback("am i free on friday").Tag)
}

func TestFallbackCRM(t *testing.T) {
	assert.Equal(t, CRMCreateLead, Fallback("add a new lead named John Smith").Tag)
	assert.Equal(t, CRMSearchContact, Fallback("find the contact for Acme Corp").Tag)
}

func TestFallbackERP(t *testing.T) {
	assert.Equal(t, ERPOrder, Fallback("order 50 units of blue widgets").Tag)
	assert.Equal(t, ERPInvoiceStatus, Fallback("what is the status of invoice INV-1042").Tag)
	assert.Equal(t, ERPCreateTicket, Fallback("open a ticket, the printer is broken").Tag)
}

func TestFallbackFAQ(t *testing.T) {
	assert.Equal(t, FAQ, Fallback("what are your opening hours?").Tag)
	assert.Equal(t, FAQ, Fallback("how much does delivery cost?").Tag)
}

func TestFallbackGeneralSentinel(t *testing.T) {
	result := Fallback("thanks, that was great")
	assert.Equal(t, General, result.Tag)
	assert.Equal(t, FallbackConfidence, result.Confidence)
	assert.NotNil(t, result.Slots)
}

// A text matching both the email and calendar families must resolve to the
// email family: matcher order is a fixed, documented tie-break.
func TestFallbackPriorityEmailBeatsCalendar(t *testing.T) {
	result := Fallback("send an email to a@b.com to schedule a meeting")
	assert.Equal(t, EmailSend, result.Tag)
}

func TestFallbackPriorityCalendarBeatsCRM(t *testing.T) {
	result := Fallback("schedule a meeting with the new customer contact")
	assert.Equal(t, CalendarSchedule, result.Tag)
}

func TestFallbackDeterministic(t *testing.T) {
	text := "send an email to a@b.com to schedule a meeting about the invoice"
	first := Fallback(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.Tag, Fallback(text).Tag)
	}
}

func TestTaxonomyValidity(t *testing.T) {
	for _, tag := range Taxonomy {
		assert.True(t, tag.Valid(), tag)
	}
	assert.False(t, Tag("EMAIL_DELETE").Valid())
	assert.False(t, Tag("").Valid())
}

func TestValidConfidence(t *testing.T) {
	assert.True(t, ValidConfidence(0))
	assert.True(t, ValidConfidence(0.7))
	assert.True(t, ValidConfidence(1))
	assert.False(t, ValidConfidence(-0.1))
	assert.False(t, ValidConfidence(1.1))
}
