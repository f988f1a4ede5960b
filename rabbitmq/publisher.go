package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultExchange = "checkout_exchange"

// routingKeys maps bus event types onto topic routing keys.
var routingKeys = map[string]string{
	"order_placed":         "order.placed",
	"order_status_changed": "order.status",
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher relays checkout events to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *zap.Logger
}

// Dial connects with retries and declares the exchange.
func Dial(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		retry := time.Duration(i*i)*time.Second + time.Second
		logger.Warn("Failed to connect to RabbitMQ, retrying", zap.Duration("in", retry), zap.Error(err))
		time.Sleep(retry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	logger.Info("RabbitMQ exchange ready", zap.String("exchange", exchange))

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

// RoutingKey returns the routing key for eventType. Unknown types fall back
// to the event type itself.
func RoutingKey(eventType string) string {
	if k, ok := routingKeys[eventType]; ok {
		return k
	}
	return eventType
}

func (p *Publisher) Name() string { return "rabbitmq" }

// Forward publishes body as a persistent JSON message. key becomes the
// message id so consumers can deduplicate per order.
func (p *Publisher) Forward(ctx context.Context, eventType, key string, body []byte) error {
	routingKey := RoutingKey(eventType)
	err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    key,
		Type:         eventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message to exchange %s with routing key %s: %w", p.exchange, routingKey, err)
	}
	p.logger.Debug("Published message", zap.String("exchange", p.exchange), zap.String("routing_key", routingKey))
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
