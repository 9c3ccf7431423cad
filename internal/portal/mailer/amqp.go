package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue outgoing mail is published to.
const DefaultQueue = "portal.mail"

// AMQPSender publishes messages as persistent JSON to a RabbitMQ queue, where
// a separate delivery worker picks them up.
type AMQPSender struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPSender dials the broker and declares the queue.
func NewAMQPSender(url, queue string) (*AMQPSender, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	s := &AMQPSender{url: url, queue: queue}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AMQPSender) connectLocked() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare queue %q: %w", s.queue, err)
	}
	s.conn, s.ch = conn, ch
	return nil
}

// Send publishes msg. A closed connection is re-dialled once.
func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.IsClosed() || s.ch == nil || s.ch.IsClosed() {
		if err := s.connectLocked(); err != nil {
			return err
		}
	}

	err = s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt,
		Type:         msg.Kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	s.ch, s.conn = nil, nil
	return errors.Join(errs...)
}
