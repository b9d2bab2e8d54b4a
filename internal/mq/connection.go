package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Connection wraps a RabbitMQ connection shared by the ingest consumer and
// the relay event publisher.
type Connection struct {
	conn *amqp.Connection
}

// NewConnection dials RabbitMQ and closes the connection on application stop.
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url, serviceName string) (*Connection, error) {
	logger.Info("attempting to connect to RabbitMQ...")

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(serviceName)

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		logger.Error("rabbitmq connection failed", zap.Error(err))
		return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ. Please check: 1) RabbitMQ is running, 2) RABBITMQ_URL is correct, 3) Credentials are valid. Error: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("rabbitmq connection established successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if conn.IsClosed() {
				return nil
			}
			if err := conn.Close(); err != nil {
				logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			logger.Info("rabbitmq connection closed")
			return nil
		},
	})

	return &Connection{conn: conn}, nil
}

// Channel opens a new channel
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// declareTopicExchange declares a durable topic exchange.
func declareTopicExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}
