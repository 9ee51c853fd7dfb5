package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/countplus7/wbot-backend-sub001/internal/conversation"
)

// ErrClassifierUnavailable means the primary classifier produced nothing
// usable: transport error, timeout, or a malformed response. Not fatal;
// the caller engages the fallback matcher table.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// DefaultConfidenceThreshold is the gate below which a classifier result
// is discarded in favor of the fallback path.
const DefaultConfidenceThreshold = 0.7

// Classifier invokes the external classification capability and validates
// its output shape. Exactly one call is made per message; transient
// provider errors surface as ErrClassifierUnavailable immediately so the
// fallback can engage without added latency.
type Classifier struct {
	model   llms.Model
	timeout time.Duration
}

// NewClassifier creates a classifier adapter over a langchaingo model.
func NewClassifier(model llms.Model, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Classifier{model: model, timeout: timeout}
}

// classifierResponse is the JSON shape the model is instructed to return.
type classifierResponse struct {
	Label      string            `json:"label"`
	Confidence float64           `json:"confidence"`
	Slots      map[string]string `json:"slots"`
}

// Classify runs one classification call. Input text must be non-empty
// after trimming. History is expected to be pre-bounded to the recent
// window by the caller.
func (c *Classifier) Classify(ctx context.Context, text string, history []*conversation.Turn) (*Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("classification input is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(text, history)

	raw, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(0.0),
		llms.WithJSONMode(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Classifier call failed, falling back")
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		log.Warn().Err(err).Str("raw", truncateForLog(raw)).Msg("Classifier returned malformed response")
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	tag := Tag(strings.ToUpper(strings.TrimSpace(parsed.Label)))
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: label %q not in taxonomy", ErrClassifierUnavailable, parsed.Label)
	}
	if !ValidConfidence(parsed.Confidence) {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrClassifierUnavailable, parsed.Confidence)
	}

	slots := parsed.Slots
	if slots == nil {
		slots = map[string]string{}
	}

	return &Intent{
		Tag:        tag,
		Confidence: parsed.Confidence,
		Slots:      slots,
		Source:     "classifier",
	}, nil
}

func buildPrompt(text string, history []*conversation.Turn) string {
	var sb strings.Builder

	sb.WriteString("You classify customer messages sent to a business into exactly one intent.\n")
	sb.WriteString("Valid intents:\n")
	for _, tag := range Taxonomy {
		sb.WriteString("- ")
		sb.WriteString(string(tag))
		sb.WriteString("\n")
	}
	sb.WriteString("\nRespond with JSON only: {\"label\": \"...\", \"confidence\": 0.0-1.0, \"slots\": {...}}\n")
	sb.WriteString("Slots are string key/value pairs you can extract, e.g. to, subject, body, date, time, name, email, product, quantity, order_id, invoice_id.\n")

	if len(history) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, turn := range history {
			sb.WriteString(string(turn.Role))
			sb.WriteString(": ")
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nMessage to classify:\n")
	sb.WriteString(text)

	return sb.String()
}

// parseResponse decodes the model output, repairing malformed JSON once
// before giving up.
func parseResponse(raw string) (*classifierResponse, error) {
	cleaned := stripMarkdownFences(raw)

	var resp classifierResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err == nil {
		return &resp, nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, fmt.Errorf("response is not JSON and could not be repaired: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &resp); err != nil {
		return nil, fmt.Errorf("repaired response still invalid: %w", err)
	}

	return &resp, nil
}

func stripMarkdownFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

func truncateForLog(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300] + "..."
}
