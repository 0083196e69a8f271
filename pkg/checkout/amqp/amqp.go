// Package amqp publishes recorded orders to a RabbitMQ queue.
package amqp

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"cartflow/pkg/order"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the body published for each order.
type Message struct {
	OrderID string       `json:"order_id"`
	Lines   []order.Line `json:"lines"`
	Items   int          `json:"items"`
}

// Publisher sends orders to a queue on the default exchange.
type Publisher struct {
	ch    Channel
	queue string
}

// New returns a publisher writing to queue through ch.
func New(ch Channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

// Publish sends o as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, o order.Order) error {
	body, err := json.Marshal(Message{OrderID: o.ID, Lines: o.Lines, Items: o.ItemCount()})
	if err != nil {
		return errors.Wrap(err, "encode order message")
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    o.ID,
		Timestamp:    o.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish order %s", o.ID)
	}
	return nil
}

// Conn owns the broker connection and the channel publishing on it.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to uri and declares the durable queue.
func Dial(uri, queue string) (*Conn, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open rabbitmq channel")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel returns the publishing channel.
func (c *Conn) Channel() *amqp.Channel { return c.ch }

// Close closes the channel and the connection.
func (c *Conn) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
