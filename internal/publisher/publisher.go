// Package publisher publishes validation session lifecycle events to RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

const eventSource = "/synapse-admin/validation"

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends CloudEvents to RabbitMQ.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	ID              string      `json:"id"`
	Time            string      `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`
}

// SessionData is the payload of every validation session event.
type SessionData struct {
	SessionID  string  `json:"session_id"`
	Phase      string  `json:"phase"`
	KeyIDs     []int64 `json:"key_ids"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Message    string  `json:"message,omitempty"`
	StartedAt  string  `json:"started_at"`
	EndedAt    string  `json:"ended_at,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
}

// New creates a new Publisher connected to RabbitMQ and declares the topic exchange.
func New(url, exchange string, logger *zap.SugaredLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	p := newWithChannel(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newWithChannel(ch channel, exchange string, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// SessionChanged publishes session starts and terminal outcomes. It
// implements validation.Listener; publish failures are logged only.
func (p *Publisher) SessionChanged(s validation.Snapshot) {
	switch s.Phase {
	case validation.PhasePreparing, validation.PhaseDone, validation.PhaseErrored, validation.PhaseAborted:
	default:
		return
	}

	routingKey := "validation.session." + phaseVerb(s.Phase)
	event := p.createEvent(routingKey, sessionData(s))
	if err := p.publish(event, routingKey); err != nil {
		p.logger.Warnw("Failed to publish session event",
			"session", s.ID,
			"type", event.Type,
			"error", err,
		)
	}
}

func phaseVerb(p validation.Phase) string {
	if p == validation.PhasePreparing {
		return "started"
	}
	return p.String()
}

func sessionData(s validation.Snapshot) SessionData {
	ids := make([]int64, len(s.RequestedIDs))
	for i, id := range s.RequestedIDs {
		ids[i] = int64(id)
	}
	d := SessionData{
		SessionID: s.ID,
		Phase:     s.Phase.String(),
		KeyIDs:    ids,
		Processed: s.Processed,
		Total:     s.Total,
		Message:   s.Message,
		StartedAt: s.StartedAt.UTC().Format(time.RFC3339),
	}
	if !s.EndedAt.IsZero() {
		d.EndedAt = s.EndedAt.UTC().Format(time.RFC3339)
		d.DurationMS = s.EndedAt.Sub(s.StartedAt).Milliseconds()
	}
	return d
}

func (p *Publisher) createEvent(eventType string, data interface{}) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          eventSource,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC().Format(time.RFC3339),
		DataContentType: "application/json",
		Data:            data,
	}
}

func (p *Publisher) publish(event CloudEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/cloudevents+json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			MessageId:    event.ID,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("Event published",
		"type", event.Type,
		"id", event.ID,
		"routing_key", routingKey,
	)
	return nil
}
