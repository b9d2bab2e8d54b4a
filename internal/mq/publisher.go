package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// publishChannel is the subset of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes JSON messages to a topic exchange
type Publisher struct {
	channel  publishChannel
	exchange string
	logger   *zap.Logger
}

// NewPublisher opens a channel and declares the exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := declareTopicExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger}, nil
}

// RelayEvent is published for every relay receipt. Consumers use it to
// reconcile simulated commitments.
type RelayEvent struct {
	DataHash    string  `json:"data_hash"`
	TxHash      string  `json:"tx_hash"`
	Status      string  `json:"status"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
	ProductID   string  `json:"product_id"`
	DeviceID    string  `json:"device_id"`
	Client      string  `json:"client"`
	Tier        string  `json:"tier"`
	RecordedAt  string  `json:"recorded_at"`
	// Record is the canonical record content, so a reconciler can
	// recompute the hash.
	Record json.RawMessage `json:"record"`
}

// RelayRoutingKey returns the routing key for a receipt status.
func RelayRoutingKey(status string) string {
	return "relay." + status
}

// PublishRelayEvent publishes a relay event routed by its status
func (p *Publisher) PublishRelayEvent(ctx context.Context, event RelayEvent) error {
	routingKey := RelayRoutingKey(event.Status)
	if err := p.publish(ctx, routingKey, event, ""); err != nil {
		return err
	}

	p.logger.Debug("published relay event",
		zap.String("routing_key", routingKey),
		zap.String("product_id", event.ProductID),
		zap.String("tx_hash", event.TxHash),
	)
	return nil
}

// Publish sends any JSON payload with the given routing key. messageID is
// optional.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any, messageID string) error {
	return p.publish(ctx, routingKey, payload, messageID)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any, messageID string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
