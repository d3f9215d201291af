package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/grouptrip/internal/model"
)

// Publisher sends persistent JSON messages to one durable queue on the
// default exchange.  The connection is opened lazily and reopened after
// a failed publish.  Safe for concurrent use.
type Publisher struct {
	url   string
	queue string
	log   zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a publisher for queue at url.  It dials right
// away so a misconfigured broker shows up at startup.
func NewPublisher(url, queue string, log zerolog.Logger) (*Publisher, error) {
	p := &Publisher{url: url, queue: queue, log: log.With().Str("component", "publisher").Logger()}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials the broker and declares the queue.  Caller holds mu.
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// PublishJSON marshals v and publishes it as a persistent message.  A
// publish that fails on a stale connection is retried once on a fresh
// one.
func (p *Publisher) PublishJSON(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; attempt < 2; attempt++ {
		if p.ch == nil || p.ch.IsClosed() {
			p.reset()
			if err = p.connect(); err != nil {
				continue
			}
		}
		if err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err == nil {
			return nil
		}
		p.reset()
	}
	return fmt.Errorf("publish to %s: %w", p.queue, err)
}

// Notify publishes a TicketsIssuedEvent for m.
func (p *Publisher) Notify(ctx context.Context, g *model.Group, m model.Member, tickets []model.Ticket) error {
	if err := p.PublishJSON(ctx, NewTicketsIssuedEvent(g, m, tickets)); err != nil {
		return err
	}
	p.log.Debug().Str("group_id", g.ID).Str("user_id", m.UserID).Int("tickets", len(tickets)).Msg("tickets issued event published")
	return nil
}

// Close shuts the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	return err
}

// LogNotifier writes the email and SMS a member would receive straight
// to the log.  Used when no broker is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier returns a LogNotifier writing to log.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

// Notify logs the rendered messages for m.
func (n *LogNotifier) Notify(_ context.Context, g *model.Group, m model.Member, tickets []model.Ticket) error {
	ev := NewTicketsIssuedEvent(g, m, tickets)
	n.log.Info().Str("channel", "email").Str("user_id", m.UserID).Msg(RenderEmail(ev))
	n.log.Info().Str("channel", "sms").Str("user_id", m.UserID).Msg(RenderSMS(ev))
	return nil
}
