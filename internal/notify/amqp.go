package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "remindd.events"
	FiredRoutingKey = "reminder.fired"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPSink publishes every fired reminder as a JSON event on a topic
// exchange so other services can react to it.
type AMQPSink struct {
	conn     *amqp091.Connection
	channel  publisher
	exchange string
}

type firedEvent struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Kind        string    `json:"kind"`
	MessageType string    `json:"message_type,omitempty"`
	Persistent  bool      `json:"persistent"`
	FiredAt     time.Time `json:"fired_at"`
}

func DialAMQP(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange}, nil
}

func (a *AMQPSink) Name() string { return "amqp" }

func (a *AMQPSink) Available() bool {
	return a.conn == nil || !a.conn.IsClosed()
}

func (a *AMQPSink) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(firedEvent{
		TaskID:      n.TaskID,
		Title:       n.Title,
		Body:        n.Body,
		Kind:        n.Kind,
		MessageType: string(n.MessageType),
		Persistent:  n.RequireInteraction,
		FiredAt:     n.FiredAt,
	})
	if err != nil {
		return err
	}
	return a.channel.PublishWithContext(ctx, a.exchange, FiredRoutingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    n.FiredAt,
		Body:         body,
	})
}

func (a *AMQPSink) Close() error {
	if c, ok := a.channel.(*amqp091.Channel); ok && c != nil {
		_ = c.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
