package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countplus7/wbot-backend-sub001/internal/compose"
	"github.com/countplus7/wbot-backend-sub001/internal/conversation"
	"github.com/countplus7/wbot-backend-sub001/internal/dispatch"
	"github.com/countplus7/wbot-backend-sub001/internal/faq"
	"github.com/countplus7/wbot-backend-sub001/internal/intent"
	"github.com/countplus7/wbot-backend-sub001/internal/providers"
	"github.com/countplus7/wbot-backend-sub001/internal/tenant"
)

type stubClassifier struct {
	intent *intent.Intent
	err    error
	calls  int
}

func (c *stubClassifier) Classify(_ context.Context, _ string, _ []*conversation.Turn) (*intent.Intent, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.intent, nil
}

type stubDispatcher struct {
	outcome *dispatch.Outcome
	got     *intent.Intent
	calls   int
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ uuid.UUID, in *intent.Intent) *dispatch.Outcome {
	d.calls++
	d.got = in
	return d.outcome
}

type memHistory struct {
	turns []*conversation.Turn
}

func (h *memHistory) Append(_ context.Context, t *conversation.Turn) error {
	h.turns = append(h.turns, t)
	return nil
}

func (h *memHistory) Recent(_ context.Context, _ uuid.UUID, _ string, _ int) ([]*conversation.Turn, error) {
	return h.turns, nil
}

type memFAQs struct {
	entries []*faq.Entry
}

func (f *memFAQs) List(_ context.Context, _ uuid.UUID) ([]*faq.Entry, error) {
	return f.entries, nil
}

func testBusiness() *tenant.Business {
	return &tenant.Business{ID: uuid.New(), Name: "Acme Plumbing", Status: tenant.StatusActive}
}

func newTestPipeline(cls classifier, d dispatcher, faqs faqSource) (*Pipeline, *memHistory) {
	history := &memHistory{}
	if faqs == nil {
		faqs = &memFAQs{}
	}
	p := New(cls, d, compose.New(nil, 0), history, faqs, nil, 0)
	return p, history
}

func TestHandleDispatchesRoutedIntent(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{
		Tag:        intent.EmailSend,
		Confidence: 0.93,
		Slots:      map[string]string{"to": "a@b.com", "subject": "Hi", "body": "Hello"},
	}}
	d := &stubDispatcher{outcome: &dispatch.Outcome{
		Kind:   dispatch.Success,
		Intent: intent.EmailSend,
		Result: &providers.Result{Summary: "Email sent to a@b.com."},
	}}
	p, history := newTestPipeline(cls, d, nil)

	reply := p.Handle(context.Background(), testBusiness(), "wa:111", "send email to a@b.com subject Hi body Hello")

	assert.Equal(t, "Email sent to a@b.com.", reply)
	assert.Equal(t, 1, d.calls)
	// Slots from the classifier survive extraction untouched.
	assert.Equal(t, "Hello", d.got.Slots["body"])
	// Both turns persisted.
	require.Len(t, history.turns, 2)
	assert.Equal(t, conversation.RoleUser, history.turns[0].Role)
	assert.Equal(t, conversation.RoleAssistant, history.turns[1].Role)
}

func TestHandleClassifierUnavailableUsesFallback(t *testing.T) {
	cls := &stubClassifier{err: intent.ErrClassifierUnavailable}
	d := &stubDispatcher{outcome: &dispatch.Outcome{
		Kind:   dispatch.Success,
		Result: &providers.Result{Summary: "done"},
	}}
	p, _ := newTestPipeline(cls, d, nil)

	reply := p.Handle(context.Background(), testBusiness(), "wa:111", "please send an email to ops@acme.io body ship it")

	assert.Equal(t, "done", reply)
	require.Equal(t, 1, d.calls)
	assert.Equal(t, intent.EmailSend, d.got.Tag)
	assert.Equal(t, "fallback", d.got.Source)
}

func TestHandleLowConfidenceDiscardsPrimaryEntirely(t *testing.T) {
	// Primary says CRM with slots, but below the gate; the fallback sees an
	// email message. Neither the label nor the slots of the primary survive.
	cls := &stubClassifier{intent: &intent.Intent{
		Tag:        intent.CRMCreateLead,
		Confidence: 0.41,
		Slots:      map[string]string{"name": "Bob"},
	}}
	d := &stubDispatcher{outcome: &dispatch.Outcome{
		Kind:   dispatch.Success,
		Result: &providers.Result{Summary: "done"},
	}}
	p, _ := newTestPipeline(cls, d, nil)

	p.Handle(context.Background(), testBusiness(), "wa:111", "send an email to ops@acme.io body ship it")

	require.Equal(t, 1, d.calls)
	assert.Equal(t, intent.EmailSend, d.got.Tag)
	assert.Empty(t, d.got.Slots["name"])
}

func TestHandleGeneralShortCircuitsDispatch(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{Tag: intent.General, Confidence: 0.9}}
	d := &stubDispatcher{}
	p, _ := newTestPipeline(cls, d, nil)

	reply := p.Handle(context.Background(), testBusiness(), "wa:111", "hey, how are you?")

	assert.NotEmpty(t, reply)
	assert.Zero(t, d.calls)
}

func TestHandleFAQAnswersFromStore(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{Tag: intent.FAQ, Confidence: 0.9}}
	d := &stubDispatcher{}
	faqs := &memFAQs{entries: []*faq.Entry{
		{Question: "What are your opening hours?", Answer: "We are open 9am to 6pm."},
	}}
	p, _ := newTestPipeline(cls, d, faqs)

	reply := p.Handle(context.Background(), testBusiness(), "wa:111", "what are your opening hours?")

	assert.Equal(t, "We are open 9am to 6pm.", reply)
	assert.Zero(t, d.calls)
}

func TestHandleFAQNoMatchFallsBackToGeneral(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{Tag: intent.FAQ, Confidence: 0.9}}
	p, _ := newTestPipeline(cls, &stubDispatcher{}, &memFAQs{})

	reply := p.Handle(context.Background(), testBusiness(), "wa:111", "what is the meaning of life?")

	assert.NotEmpty(t, reply)
}

func TestHandleDuplicateDeliveryReplaysCachedReply(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{Tag: intent.General, Confidence: 0.9}}
	p, history := newTestPipeline(cls, &stubDispatcher{}, nil)
	business := testBusiness()

	first := p.Handle(context.Background(), business, "wa:111", "hello")
	second := p.Handle(context.Background(), business, "wa:111", "hello")

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cls.calls)
	// Only the first delivery produced turns.
	assert.Len(t, history.turns, 2)
}

func TestHandleSameTextDifferentSenderNotDuplicate(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{Tag: intent.General, Confidence: 0.9}}
	p, _ := newTestPipeline(cls, &stubDispatcher{}, nil)
	business := testBusiness()

	assert.NotEmpty(t, p.Handle(context.Background(), business, "wa:111", "hello"))
	assert.NotEmpty(t, p.Handle(context.Background(), business, "wa:222", "hello"))
	assert.Equal(t, 2, cls.calls)
}

func TestHandleExtractionFillsMissingSlots(t *testing.T) {
	cls := &stubClassifier{intent: &intent.Intent{
		Tag:        intent.ERPInvoiceStatus,
		Confidence: 0.88,
		Slots:      nil,
	}}
	d := &stubDispatcher{outcome: &dispatch.Outcome{
		Kind:   dispatch.Success,
		Result: &providers.Result{Summary: "Invoice INV-1042 is paid."},
	}}
	p, _ := newTestPipeline(cls, d, nil)

	p.Handle(context.Background(), testBusiness(), "wa:111", "what's the status of invoice INV-1042?")

	require.Equal(t, 1, d.calls)
	assert.Equal(t, "INV-1042", d.got.Slots["invoice_id"])
}
