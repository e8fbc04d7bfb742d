package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue decouples dispatch from delivery when a broker is configured.
type Queue interface {
	Publish(ctx context.Context, body []byte) error
	Consume(consumer string) (<-chan amqp.Delivery, error)
	Close()
}

// Broker is the RabbitMQ-backed queue used when AMQP_URL is set.
type Broker struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Ensure Broker implements Queue
var _ Queue = (*Broker)(nil)

// ConnectBroker dials the broker and declares the durable dispatch queue.
func ConnectBroker(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		dispatchQueue, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", dispatchQueue, err)
	}
	return &Broker{conn: conn, ch: ch}, nil
}

// Publish enqueues one persistent message.
func (b *Broker) Publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return b.ch.PublishWithContext(ctx,
		"",            // default exchange
		dispatchQueue, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		})
}

// Consume opens a manual-ack delivery stream from the dispatch queue.
func (b *Broker) Consume(consumer string) (<-chan amqp.Delivery, error) {
	return b.ch.Consume(
		dispatchQueue, // queue
		consumer,      // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
}

// Close shuts the channel and connection down.
func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// consumeQueue drains the dispatch queue until the service stops. Messages
// are acked whether the send works or not; the outcome lives in the email
// log, and retrying a mail that already reached the provider would double
// it.
func (s *Service) consumeQueue(ctx context.Context) {
	deliveries, err := s.queue.Consume(consumerTag)
	if err != nil {
		s.Logger().WithError(err).Error("mail queue consume failed")
		return
	}
	s.Logger().Info("mail queue consumer started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.StopChan():
			return
		case d, ok := <-deliveries:
			if !ok {
				s.Logger().Warn("mail queue channel closed")
				return
			}
			s.handleDelivery(ctx, d)
		}
	}
}

func (s *Service) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var qm queuedMail
	if err := json.Unmarshal(d.Body, &qm); err != nil {
		s.Logger().WithError(err).Warn("unreadable mail queue message dropped")
		s.ack(d)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.deliver(sendCtx, qm.LogID, qm.Type, &qm.Message); err != nil {
		s.Logger().WithError(err).WithField("recipient", qm.Message.To).Warn("queued mail delivery failed")
	}
	s.ack(d)
}

func (s *Service) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		s.Logger().WithError(err).Warn("mail queue ack failed")
	}
}
