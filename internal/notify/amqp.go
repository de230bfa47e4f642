package notify

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig describes the RabbitMQ connection and routing.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"` // empty publishes to the default exchange
	Queue    string `yaml:"queue"`
	Durable  bool   `yaml:"durable"`
}

// AMQPPublisher publishes events to RabbitMQ. Trades and alerts are routed
// with keys "<queue>.trade" and "<queue>.alert" when an exchange is set,
// otherwise straight to the declared queue.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	durable  bool
}

// NewAMQPPublisher dials RabbitMQ and declares the target queue.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "trade-engine.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if cfg.Exchange != "" {
		if err := ch.QueueBind(queue, queue+".#", cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: cfg.Exchange, queue: queue, durable: cfg.Durable}, nil
}

// Publish sends the encoded event as a JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.ch == nil {
		return errors.New("amqp publisher not initialised")
	}
	data, err := encode(ev)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType: "application/json",
		Type:        string(ev.Type),
		Timestamp:   ev.Timestamp,
		Body:        data,
	}
	if p.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey(ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) routingKey(t EventType) string {
	if p.exchange == "" {
		return p.queue
	}
	return p.queue + "." + string(t)
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
