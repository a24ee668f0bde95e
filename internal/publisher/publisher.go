package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/mirror-adapter/internal/metrics"
	"github.com/Checker-Finance/mirror-adapter/pkg/logger"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// Publisher wraps a NATS connection and provides helpers for publishing
// canonical mirror events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"follower":       []string{env.Follower},
			"leader":         []string{env.Leader},
		},
	}

	if _, err = p.js.PublishMsg(msg); err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// PublishTradeReplicated emits an evt.mirror.trade_replicated event for an
// executed incremental mirror order.
func (p *Publisher) PublishTradeReplicated(ctx context.Context, ev model.TradeReplicatedEvent, follower, leader model.AccountID) error {
	return p.publishTyped(ctx, "evt.mirror.trade_replicated.v1", "mirror.trade_replicated", ev, follower, leader)
}

// PublishReconciled emits an evt.mirror.reconciled event after a full pass.
func (p *Publisher) PublishReconciled(ctx context.Context, ev model.ReconciledEvent, follower, leader model.AccountID) error {
	return p.publishTyped(ctx, "evt.mirror.reconciled.v1", "mirror.reconciled", ev, follower, leader)
}

func (p *Publisher) publishTyped(ctx context.Context, topic, eventType string, payload any, follower, leader model.AccountID) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Follower:      string(follower),
		Leader:        string(leader),
		Topic:         topic,
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(payload)
	env.Payload = data

	return p.PublishEnvelope(ctx, topic, env)
}

// Publish publishes raw JSON payloads (for non-canonical internal events).
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"source": []string{p.service}},
	}

	if _, err = p.js.PublishMsg(msg); err != nil {
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
