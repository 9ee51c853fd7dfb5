package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/compose"
	"github.com/countplus7/wbot-backend-sub001/internal/conversation"
	"github.com/countplus7/wbot-backend-sub001/internal/dispatch"
	"github.com/countplus7/wbot-backend-sub001/internal/events"
	"github.com/countplus7/wbot-backend-sub001/internal/faq"
	"github.com/countplus7/wbot-backend-sub001/internal/intent"
	"github.com/countplus7/wbot-backend-sub001/internal/slots"
	"github.com/countplus7/wbot-backend-sub001/internal/tenant"
)

const (
	// dedupTTL covers the webhook redelivery window.
	dedupTTL  = 60 * time.Second
	dedupSize = 1024
)

// classifier is the primary intent classification capability.
type classifier interface {
	Classify(ctx context.Context, text string, history []*conversation.Turn) (*intent.Intent, error)
}

// dispatcher executes routed intents.
type dispatcher interface {
	Dispatch(ctx context.Context, businessID uuid.UUID, in *intent.Intent) *dispatch.Outcome
}

// historyStore is the slice of conversation.Store the pipeline needs.
type historyStore interface {
	Append(ctx context.Context, t *conversation.Turn) error
	Recent(ctx context.Context, businessID uuid.UUID, channelIdentity string, limit int) ([]*conversation.Turn, error)
}

// faqSource lists a tenant's FAQ entries.
type faqSource interface {
	List(ctx context.Context, businessID uuid.UUID) ([]*faq.Entry, error)
}

// Pipeline is the end-to-end path for one inbound message: dedup,
// classify (with deterministic fallback), extract, dispatch, compose,
// persist, emit. It never returns an error to the caller; every failure
// mode ends in a usable reply.
type Pipeline struct {
	classifier classifier
	dispatcher dispatcher
	composer   *compose.Composer
	history    historyStore
	faqs       faqSource
	publisher  *events.Publisher
	threshold  float64

	seen *lru.LRU[string, string]
	now  func() time.Time
}

// New wires a pipeline. publisher may be nil; threshold <= 0 uses the
// default confidence gate.
func New(cls classifier, d dispatcher, composer *compose.Composer, history historyStore, faqs faqSource, publisher *events.Publisher, threshold float64) *Pipeline {
	if threshold <= 0 {
		threshold = intent.DefaultConfidenceThreshold
	}
	return &Pipeline{
		classifier: cls,
		dispatcher: d,
		composer:   composer,
		history:    history,
		faqs:       faqs,
		publisher:  publisher,
		threshold:  threshold,
		seen:       lru.NewLRU[string, string](dedupSize, nil, dedupTTL),
		now:        time.Now,
	}
}

// Handle processes one inbound message and returns the reply text. A
// duplicate delivery inside the dedup window returns the reply composed
// the first time, without re-dispatching.
func (p *Pipeline) Handle(ctx context.Context, business *tenant.Business, channelIdentity, text string) string {
	key := dedupKey(business.ID, channelIdentity, text)
	if cached, ok := p.seen.Get(key); ok {
		log.Debug().
			Str("business_id", business.ID.String()).
			Str("identity", channelIdentity).
			Msg("duplicate delivery, replaying cached reply")
		return cached
	}

	history, err := p.history.Recent(ctx, business.ID, channelIdentity, conversation.HistoryWindow)
	if err != nil {
		// Classification works without history; degrade instead of failing.
		log.Warn().Err(err).Str("business_id", business.ID.String()).Msg("failed to load conversation history")
		history = nil
	}

	in := p.resolveIntent(ctx, text, history)
	reply := p.respond(ctx, business, text, in)
	p.seen.Add(key, reply)

	p.persistTurns(ctx, business.ID, channelIdentity, text, reply)
	return reply
}

// resolveIntent runs the primary classifier once and falls back to the
// deterministic matcher table when it is unavailable or below the
// confidence gate. A below-gate primary result is discarded whole; its
// slots are not trusted either.
func (p *Pipeline) resolveIntent(ctx context.Context, text string, history []*conversation.Turn) *intent.Intent {
	in, err := p.classifier.Classify(ctx, text, history)
	if err != nil {
		if !errors.Is(err, intent.ErrClassifierUnavailable) {
			log.Warn().Err(err).Msg("classifier failed")
		}
		fb := intent.Fallback(text)
		return &fb
	}

	if in.Confidence < p.threshold {
		log.Debug().
			Str("label", string(in.Tag)).
			Float64("confidence", in.Confidence).
			Float64("threshold", p.threshold).
			Msg("classifier confidence below gate, using fallback")
		fb := intent.Fallback(text)
		return &fb
	}

	return in
}

func (p *Pipeline) respond(ctx context.Context, business *tenant.Business, text string, in *intent.Intent) string {
	switch in.Tag {
	case intent.General:
		return p.composer.General(ctx, business, text)

	case intent.FAQ:
		return p.answerFAQ(ctx, business, text)

	default:
		in.Slots = slots.Extract(in.Tag, text, p.now(), slots.Values(in.Slots))
		out := p.dispatcher.Dispatch(ctx, business.ID, in)
		p.publisher.Outcome(ctx, business.ID, out)
		return p.composer.Reply(ctx, business, out)
	}
}

func (p *Pipeline) answerFAQ(ctx context.Context, business *tenant.Business, text string) string {
	entries, err := p.faqs.List(ctx, business.ID)
	if err != nil {
		log.Warn().Err(err).Str("business_id", business.ID.String()).Msg("failed to load faq entries")
	}
	if match := faq.BestMatch(entries, text); match != nil {
		return p.composer.FAQ(ctx, business, match.Answer)
	}
	return p.composer.General(ctx, business, text)
}

func (p *Pipeline) persistTurns(ctx context.Context, businessID uuid.UUID, channelIdentity, text, reply string) {
	userTurn := &conversation.Turn{
		BusinessID:      businessID,
		ChannelIdentity: channelIdentity,
		Role:            conversation.RoleUser,
		Text:            text,
	}
	if err := p.history.Append(ctx, userTurn); err != nil {
		log.Warn().Err(err).Msg("failed to persist user turn")
	}

	if reply == "" {
		return
	}
	assistantTurn := &conversation.Turn{
		BusinessID:      businessID,
		ChannelIdentity: channelIdentity,
		Role:            conversation.RoleAssistant,
		Text:            reply,
	}
	if err := p.history.Append(ctx, assistantTurn); err != nil {
		log.Warn().Err(err).Msg("failed to persist assistant turn")
	}
}

func dedupKey(businessID uuid.UUID, channelIdentity, text string) string {
	sum := sha256.Sum256([]byte(text))
	return businessID.String() + "|" + channelIdentity + "|" + hex.EncodeToString(sum[:])
}
