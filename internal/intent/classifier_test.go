package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/countplus7/wbot-backend-sub001/internal/conversation"
)

// mockModel returns canned responses in order, then repeats the last one.
type mockModel struct {
	responses []string
	err       error
	calls     int
	lastMsgs  []llms.MessageContent
}

func (m *mockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.lastMsgs = messages
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.responses[idx]}},
	}, nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func TestClassifyValidResponse(t *testing.T) {
	model := &mockModel{responses: []string{
		`{"label": "EMAIL_SEND", "confidence": 0.93, "slots": {"to": "a@b.com", "subject": "Hi"}}`,
	}}
	c := NewClassifier(model, time.Second)

	result, err := c.Classify(context.Background(), "send email to a@b.com subject Hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EmailSend, result.Tag)
	assert.Equal(t, 0.93, result.Confidence)
	assert.Equal(t, "a@b.com", result.Slots["to"])
	assert.Equal(t, "classifier", result.Source)
}

func TestClassifyEmptyTextRejected(t *testing.T) {
	c := NewClassifier(&mockModel{responses: []string{"{}"}}, time.Second)

	_, err := c.Classify(context.Background(), "   ", nil)
	assert.Error(t, err)
}

func TestClassifyTransportErrorIsUnavailable(t *testing.T) {
	model := &mockModel{err: errors.New("connection refused")}
	c := NewClassifier(model, time.Second)

	_, err := c.Classify(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Equal(t, 1, model.calls, "classifier makes exactly one call, no retry")
}

func TestClassifyUnknownLabelIsUnavailable(t *testing.T) {
	model := &mockModel{responses: []string{`{"label": "EMAIL_DELETE", "confidence": 0.9, "slots": {}}`}}
	c := NewClassifier(model, time.Second)

	_, err := c.Classify(context.Background(), "delete my email", nil)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
}

func TestClassifyBadConfidenceIsUnavailable(t *testing.T) {
	for _, payload := range []string{
		`{"label": "GENERAL", "confidence": 1.7, "slots": {}}`,
		`{"label": "GENERAL", "confidence": -0.2, "slots": {}}`,
	} {
		model := &mockModel{responses: []string{payload}}
		c := NewClassifier(model, time.Second)

		_, err := c.Classify(context.Background(), "hello", nil)
		assert.ErrorIs(t, err, ErrClassifierUnavailable, payload)
	}
}

func TestClassifyGarbageIsUnavailableNotPanic(t *testing.T) {
	model := &mockModel{responses: []string{`I think this is about email, probably`}}
	c := NewClassifier(model, time.Second)

	_, err := c.Classify(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
}

func TestClassifyRepairsSloppyJSON(t *testing.T) {
	// Trailing comma and markdown fences, both common model sloppiness.
	model := &mockModel{responses: []string{
		"```json\n{\"label\": \"CALENDAR_SCHEDULE\", \"confidence\": 0.88, \"slots\": {\"date\": \"tomorrow\",}}\n```",
	}}
	c := NewClassifier(model, time.Second)

	result, err := c.Classify(context.Background(), "schedule a meeting tomorrow", nil)
	require.NoError(t, err)
	assert.Equal(t, CalendarSchedule, result.Tag)
	assert.Equal(t, "tomorrow", result.Slots["date"])
}

func TestClassifyLowercaseLabelNormalized(t *testing.T) {
	model := &mockModel{responses: []string{`{"label": "email_read", "confidence": 0.8, "slots": {}}`}}
	c := NewClassifier(model, time.Second)

	result, err := c.Classify(context.Background(), "check my inbox", nil)
	require.NoError(t, err)
	assert.Equal(t, EmailRead, result.Tag)
}

func TestClassifyIncludesHistoryInPrompt(t *testing.T) {
	model := &mockModel{responses: []string{`{"label": "GENERAL", "confidence": 0.9, "slots": {}}`}}
	c := NewClassifier(model, time.Second)

	history := []*conversation.Turn{
		{Role: conversation.RoleUser, Text: "do you sell blue widgets"},
		{Role: conversation.RoleAssistant, Text: "we do"},
	}
	_, err := c.Classify(context.Background(), "great, order 10 of them", history)
	require.NoError(t, err)

	require.NotEmpty(t, model.lastMsgs)
	prompt := flattenPrompt(model.lastMsgs)
	assert.Contains(t, prompt, "do you sell blue widgets")
	assert.Contains(t, prompt, "order 10 of them")
}

func flattenPrompt(msgs []llms.MessageContent) string {
	var out string
	for _, m := range msgs {
		for _, p := range m.Parts {
			if text, ok := p.(llms.TextContent); ok {
				out += text.Text
			}
		}
	}
	return out
}
