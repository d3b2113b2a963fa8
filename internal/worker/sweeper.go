// Package worker holds background jobs that run next to the HTTP server.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/metrics"
	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/queue"
	"github.com/iliyamo/field-reservation/internal/service"
)

// batchSize caps how many reservations one sweep completes.
const batchSize = 200

// CompletionStore is the slice of the reservation repository the sweeper needs.
type CompletionStore interface {
	ListCompletable(ctx context.Context, date, clock string, limit int) ([]model.Reservation, error)
	MarkCompleted(ctx context.Context, id uint64) (bool, error)
}

// CompletionSweeper periodically moves CONFIRMED reservations whose end
// time has passed to COMPLETED.  Completed reservations accept no further
// payment changes.
type CompletionSweeper struct {
	Store    CompletionStore
	Events   service.Publisher
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
	Log      zerolog.Logger
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *CompletionSweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s.Log.Info().Dur("interval", interval).Msg("completion sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		s.Log.Error().Err(err).Msg("initial completion sweep failed")
	}
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("completion sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.Log.Error().Err(err).Msg("completion sweep failed")
			}
		}
	}
}

// Sweep completes every reservation that has ended and returns how many
// were changed.  A reservation whose payment changed in the meantime is
// skipped by the status guard in MarkCompleted.
func (s *CompletionSweeper) Sweep(ctx context.Context) (int, error) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	now = now.In(loc)

	list, err := s.Store.ListCompletable(ctx, now.Format(booking.DateLayout), now.Format("15:04"), batchSize)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, r := range list {
		if !booking.CanComplete(r, now, loc) {
			continue
		}
		ok, err := s.Store.MarkCompleted(ctx, r.ID)
		if err != nil {
			s.Log.Warn().Err(err).Uint64("reservation_id", r.ID).Msg("mark completed")
			continue
		}
		if !ok {
			continue
		}
		done++
		r.Status = model.StatusCompleted
		if s.Events != nil {
			_ = s.Events.Publish(ctx, queue.NewReservationEvent(queue.EventReservationComplete, r, "", now))
		}
	}
	if done > 0 {
		metrics.AddCompleted(done)
		s.Log.Info().Int("completed", done).Msg("reservations completed")
	}
	return done, nil
}
