package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/mirror"
	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// ReconcileCommand asks for an immediate out-of-schedule reconciliation
// pass for a follower. Sent by ops tooling when drift is suspected.
type ReconcileCommand struct {
	Follower string `json:"follower"`
	Reason   string `json:"reason,omitempty"`
}

// ResubscribeCommand re-points a follower at a new leader account.
type ResubscribeCommand struct {
	Follower string `json:"follower"`
	Leader   string `json:"leader"`
}

// MirrorService defines the mirror operations driven by commands.
type MirrorService interface {
	Reconcile(ctx context.Context, follower model.AccountID) (venue.TxSignature, error)
	Subscribe(ctx context.Context, follower, leader model.AccountID) (mirror.Subscription, error)
}

// Consumer consumes mirror control commands from RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	service MirrorService
	logger  *zap.Logger
	done    chan struct{}
}

// NewConsumer creates a new RabbitMQ consumer.
func NewConsumer(url string, service MirrorService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		service: service,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start declares the command queues and starts the consumer goroutines.
func (c *Consumer) Start(ctx context.Context) error {
	reconcileQueue := "outbound.mirror.reconcile"
	resubscribeQueue := "outbound.mirror.resubscribe"

	if _, err := c.channel.QueueDeclare(reconcileQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", reconcileQueue, err)
	}

	if _, err := c.channel.QueueDeclare(resubscribeQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", resubscribeQueue, err)
	}

	reconcileMsgs, err := c.channel.Consume(reconcileQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", reconcileQueue, err)
	}

	resubscribeMsgs, err := c.channel.Consume(resubscribeQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", resubscribeQueue, err)
	}

	c.logger.Info("consumer.started",
		zap.String("reconcile_queue", reconcileQueue),
		zap.String("resubscribe_queue", resubscribeQueue),
	)

	go c.consumeReconcile(ctx, reconcileMsgs)
	go c.consumeResubscribe(ctx, resubscribeMsgs)

	return nil
}

func (c *Consumer) consumeReconcile(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("consumer.reconcile_channel_closed")
				return
			}

			var cmd ReconcileCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("consumer.bad_reconcile_command", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			c.logger.Info("consumer.reconcile_command",
				zap.String("follower", cmd.Follower),
				zap.String("reason", cmd.Reason))

			if _, err := c.service.Reconcile(ctx, model.AccountID(cmd.Follower)); err != nil {
				if errors.Is(err, mirror.ErrNoSubscription) {
					c.logger.Warn("consumer.no_subscription",
						zap.String("follower", cmd.Follower))
					msg.Nack(false, false)
					continue
				}
				c.logger.Error("consumer.reconcile_failed",
					zap.String("follower", cmd.Follower),
					zap.Error(err))
				msg.Nack(false, true) // Requeue on failure
				continue
			}

			msg.Ack(false)
		}
	}
}

func (c *Consumer) consumeResubscribe(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("consumer.resubscribe_channel_closed")
				return
			}

			var cmd ResubscribeCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("consumer.bad_resubscribe_command", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			if _, err := c.service.Subscribe(ctx, model.AccountID(cmd.Follower), model.AccountID(cmd.Leader)); err != nil {
				c.logger.Error("consumer.resubscribe_failed",
					zap.String("follower", cmd.Follower),
					zap.String("leader", cmd.Leader),
					zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			msg.Ack(false)
		}
	}
}

// Close shuts down the consumer.
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("consumer.channel_close_failed", zap.Error(err))
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
