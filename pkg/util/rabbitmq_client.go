package util

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// RabbitMQClient publishes and consumes piggyback messages.
type RabbitMQClient struct {
	config   *models.RabbitMQConfig
	conn     *amqp.Connection
	channel  *amqp.Channel
	logger   *slog.Logger
	mu       sync.Mutex
	isClosed bool
}

// NewRabbitMQClient creates a new RabbitMQ client instance
func NewRabbitMQClient(config *models.RabbitMQConfig, logger *slog.Logger) *RabbitMQClient {
	defaults := models.DefaultRabbitMQConfig()
	if config == nil {
		config = defaults
	}
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.Exchange == "" {
		config.Exchange = defaults.Exchange
	}
	if config.ExchangeType == "" {
		config.ExchangeType = defaults.ExchangeType
	}
	if config.QueueName == "" {
		config.QueueName = defaults.QueueName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RabbitMQClient{config: config, logger: logger.With("component", "rabbitmq")}
}

// LoadRabbitMQConfig reads a JSON client configuration.
func LoadRabbitMQConfig(path string) (*models.RabbitMQConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	config := models.DefaultRabbitMQConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}
	return config, nil
}

// Connect establishes a connection to RabbitMQ and sets up the exchange
func (c *RabbitMQClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClientClosed
	}
	if c.conn != nil {
		return nil // Already connected
	}

	conn, err := amqp.DialConfig(c.config.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: 30 * time.Second}
			return dialer.DialContext(ctx, network, addr)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		c.config.Exchange,     // name
		c.config.ExchangeType, // type
		c.config.Durable,      // durable
		c.config.AutoDelete,   // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.logger.Debug("Connected and exchange declared", "exchange", c.config.Exchange)
	return nil
}

// Publish sends a piggyback message.
func (c *RabbitMQClient) Publish(ctx context.Context, msg *models.PiggybackMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClientClosed
	}
	if c.channel == nil {
		return fmt.Errorf("not connected: call Connect() first")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.PublishWithContext(
		ctx,
		c.config.Exchange,   // exchange
		c.config.RoutingKey, // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.CollectionID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Distribute publishes one message per target host of data.
func (c *RabbitMQClient) Distribute(ctx context.Context, source string, data sections.PiggybackRawData) error {
	collectionID := uuid.NewString()
	now := time.Now()
	for target, lines := range data {
		msg := &models.PiggybackMessage{
			CollectionID: collectionID,
			SourceHost:   source,
			TargetHost:   target,
			Timestamp:    now,
			Lines:        lines,
		}
		if err := c.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publishing piggyback data for %s: %w", target, err)
		}
	}
	return nil
}

// Close closes the RabbitMQ connection and cleans up resources
func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return nil
	}

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.isClosed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *RabbitMQClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.isClosed
}

// CreateQueue creates a queue and binds it to the exchange
func (c *RabbitMQClient) CreateQueue(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return "", ErrClientClosed
	}
	if c.channel == nil {
		return "", fmt.Errorf("not connected: call Connect() first")
	}

	queue, err := c.channel.QueueDeclare(
		c.config.QueueName,       // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // delete when unused
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		queue.Name,          // queue name
		c.config.RoutingKey, // routing key (empty for fanout)
		c.config.Exchange,   // exchange
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return "", fmt.Errorf("failed to bind queue to exchange: %w", err)
	}

	c.logger.Debug("Queue created and bound", "queue", queue.Name, "exchange", c.config.Exchange)
	return queue.Name, nil
}

// Consume calls handler for every message of queueName until ctx is done.
// Messages that cannot be decoded are dropped, a handler error requeues.
func (c *RabbitMQClient) Consume(ctx context.Context, queueName string, handler func(msg *models.PiggybackMessage) error) error {
	c.mu.Lock()
	if c.isClosed || c.channel == nil {
		c.mu.Unlock()
		return fmt.Errorf("client is closed or not connected")
	}
	channel := c.channel
	c.mu.Unlock()

	msgs, err := channel.ConsumeWithContext(
		ctx,
		queueName, // queue
		"",        // consumer tag (empty = auto-generated)
		false,     // auto-ack (false = manual ack)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Started consuming", "queue", queueName)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Consumer stopped due to context cancellation")
				return
			case delivery, ok := <-msgs:
				if !ok {
					c.logger.Info("Consumer channel closed")
					return
				}
				handleDelivery(c.logger, delivery, handler)
			}
		}
	}()

	return nil
}

func handleDelivery(logger *slog.Logger, delivery amqp.Delivery, handler func(msg *models.PiggybackMessage) error) {
	var msg models.PiggybackMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		logger.Warn("Failed to unmarshal message", "error", err)
		delivery.Nack(false, false)
		return
	}
	if err := handler(&msg); err != nil {
		logger.Warn("Handler error", "error", err, "source", msg.SourceHost, "target", msg.TargetHost)
		// Requeue once; a message failing again is dropped.
		delivery.Nack(false, !delivery.Redelivered)
		return
	}
	delivery.Ack(false)
}
