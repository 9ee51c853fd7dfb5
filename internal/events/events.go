package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/dispatch"
)

// Envelope is the message published for every handled inbound message.
// Downstream consumers (analytics, billing) key on event_id for dedup.
type Envelope struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Intent     string    `json:"intent"`
	Outcome    string    `json:"outcome_kind"`
	Reason     string    `json:"reason,omitempty"`
	Provider   string    `json:"provider,omitempty"`
}

// Publisher emits outcome envelopes to a fanout exchange. Publishing is
// best effort: a broker outage must never fail message handling, so all
// errors are logged and swallowed. A nil Publisher is a valid no-op.
type Publisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher connects to the broker and declares the exchange. A
// connection failure is returned so startup can decide whether events are
// mandatory; runtime failures are not.
func NewPublisher(url, exchange string) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Outcome builds and publishes the envelope for a dispatch outcome.
func (p *Publisher) Outcome(ctx context.Context, tenantID uuid.UUID, out *dispatch.Outcome) {
	if p == nil || out == nil {
		return
	}
	p.publish(ctx, Envelope{
		EventID:    uuid.New(),
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
		Intent:     string(out.Intent),
		Outcome:    string(out.Kind),
		Reason:     string(out.Reason),
		Provider:   string(out.Provider),
	})
}

func (p *Publisher) publish(ctx context.Context, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode outcome event")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			log.Warn().Err(err).Msg("event broker unavailable, dropping outcome event")
			return
		}
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID.String(),
		Timestamp:    env.OccurredAt,
		Body:         body,
	})
	if err != nil {
		log.Warn().Err(err).Str("event_id", env.EventID.String()).Msg("failed to publish outcome event")
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
