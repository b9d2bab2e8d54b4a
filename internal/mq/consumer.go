package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrTransient marks a handler failure worth retrying. Messages failing with
// it are requeued instead of dead-lettered.
var ErrTransient = errors.New("transient failure")

// MessageHandler processes one delivery body. A non-nil error dead-letters
// the message unless it wraps ErrTransient.
type MessageHandler func(ctx context.Context, body []byte) error

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection    *Connection
	Queue         string
	DLQQueue      string
	Exchange      string
	RoutingKey    string
	PrefetchCount int
	Logger        *zap.Logger
	Handler       MessageHandler
}

// Consumer reads ingest messages from a queue bound to a topic exchange.
type Consumer struct {
	channel       *amqp.Channel
	queue         string
	prefetchCount int
	logger        *zap.Logger
	handler       MessageHandler
}

// NewConsumer declares the exchange, queue, DLQ and binding, then returns
// a consumer ready to Start.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := declareIngestTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}

	return &Consumer{
		channel:       ch,
		queue:         cfg.Queue,
		prefetchCount: cfg.PrefetchCount,
		logger:        cfg.Logger,
		handler:       cfg.Handler,
	}, nil
}

func declareIngestTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := declareTopicExchange(ch, cfg.Exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		// a failed declare closes the channel, so the caller must retry on a new one
		return fmt.Errorf("failed to declare queue %s with dead-lettering: %w", cfg.Queue, err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Start begins consuming until ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Int("prefetch", c.prefetchCount),
	)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer context cancelled, stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("message channel closed")
					return
				}
				c.handle(ctx, msg)
			}
		}
	}()
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	logger := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.MessageId),
	)

	settle(logger, msg, c.handler(ctx, msg.Body))
}

// acknowledger is the part of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(logger *zap.Logger, msg acknowledger, err error) {
	if err != nil {
		requeue := errors.Is(err, ErrTransient)
		logger.Error("failed to process message", zap.Error(err), zap.Bool("requeue", requeue))
		// requeue=false routes the message to the DLQ
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			logger.Error("failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		logger.Error("failed to ACK message", zap.Error(ackErr))
	}
}

// Close closes the consumer channel
func (c *Consumer) Close() error {
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel.Close()
	}
	return nil
}
