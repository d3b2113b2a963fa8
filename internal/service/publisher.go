// Package service provides functions to publish domain events to RabbitMQ.
// Publishing is best effort: errors are logged and returned so callers can
// ignore them without interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/queue"
)

// Publisher delivers reservation events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }

// AMQPPublisher publishes events to a durable RabbitMQ queue.  Each publish
// opens its own connection, which keeps the publisher stateless at the cost
// of a dial per event.
type AMQPPublisher struct {
	URL   string
	Queue string
	Log   zerolog.Logger
}

// NewAMQPPublisher returns a publisher for url and queue.
func NewAMQPPublisher(url, queueName string, log zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Queue: queueName, Log: log}
}

// Publish sends ev as a persistent JSON message routed to the queue.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	log := p.Log.With().Str("event", ev.Type).Uint64("reservation_id", ev.ReservationID).Logger()

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.Queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}

// ErrPublisherClosed is returned by Async.Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Async wraps a publisher so events are sent from a background goroutine
// with their own timeout; request latency does not depend on the broker.
// Close waits for in-flight events.
type Async struct {
	Next    Publisher
	Timeout time.Duration
	Log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync returns an Async publisher in front of next.
func NewAsync(next Publisher, timeout time.Duration, log zerolog.Logger) *Async {
	return &Async{Next: next, Timeout: timeout, Log: log}
}

func (a *Async) Publish(_ context.Context, ev queue.ReservationEvent) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.Log.Debug().Str("event", ev.Type).Msg("event dropped after close")
		return ErrPublisherClosed
	}
	a.wg.Add(1)
	a.mu.Unlock()

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.Next.Publish(ctx, ev); err != nil {
			a.Log.Debug().Err(err).Str("event", ev.Type).Msg("event dropped")
		}
	}()
	return nil
}

// Close stops accepting events and blocks until pending ones are sent or
// have timed out.
func (a *Async) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}
