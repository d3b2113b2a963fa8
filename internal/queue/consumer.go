package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// LogFileName is the file, inside the consumer's log directory, that
// receives one line per reservation event.
const LogFileName = "reservation.log"

// Consumer reads reservation events from a durable queue and appends them
// to LogDir/reservation.log in a single-line, human-friendly format.
type Consumer struct {
	URL    string
	Queue  string
	LogDir string
	Retry  RetryPolicy
	Log    zerolog.Logger

	mu sync.Mutex // serializes writes to the log file
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-established with the retry policy's backoff; Run
// returns an error only when the policy gives up.
func (c *Consumer) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			attempt++
			if c.Retry.Exhausted(attempt) {
				return fmt.Errorf("reservation-consumer: giving up after %d attempts: %w", attempt-1, err)
			}
			delay := c.Retry.NextDelay(attempt)
			c.Log.Warn().Err(err).Dur("retry_in", delay).Msg("reservation-consumer: failed to dial broker")
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}
		attempt = 0 // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.Log.Warn().Err(err).Msg("reservation-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, c.Retry.NextDelay(1)) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("reservation-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.HandleMessage(d.Body); err != nil {
			c.Log.Error().Err(err).Msg("reservation-consumer: handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one event and appends it to the log file.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == 0 {
		return errors.New("event without type or reservation id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.LogDir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.LogDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | reservation_id=%d | user_id=%d | field_id=%d | field=%q | date=%s | time=%s-%s | total=%d | status=%s | payment=%s\n",
		ev.OccurredAt, ev.Type, ev.ReservationID, ev.UserID, ev.FieldID, ev.FieldName,
		ev.Date, ev.StartTime, ev.EndTime, ev.TotalPrice, ev.Status, ev.PaymentStatus)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
