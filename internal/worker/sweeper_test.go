package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/queue"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestSweep(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewReservationRepo(db)
	fieldID := testutil.InsertField(t, db, "Futsal A", 100000)
	userID := testutil.InsertUser(t, db, "a@example.com", model.RoleUser)

	confirmedPast := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-02", "10:00", "12:00", "CONFIRMED", "PAID")
	endedToday := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-03", "08:00", "10:00", "CONFIRMED", "PAID")
	stillRunning := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-03", "10:00", "12:00", "CONFIRMED", "PAID")
	pendingPast := testutil.InsertReservation(t, db, userID, fieldID, "2026-03-02", "14:00", "15:00", "PENDING", "PENDING")

	pub := &recordingPublisher{}
	s := &CompletionSweeper{
		Store:    repo,
		Events:   pub,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC) },
		Log:      zerolog.Nop(),
	}

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx := context.Background()
	status := func(id uint64) model.Status {
		r, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		return r.Status
	}
	assert.Equal(t, model.StatusCompleted, status(confirmedPast))
	assert.Equal(t, model.StatusCompleted, status(endedToday))
	assert.Equal(t, model.StatusConfirmed, status(stillRunning))
	assert.Equal(t, model.StatusPending, status(pendingPast))

	require.Len(t, pub.events, 2)
	assert.Equal(t, queue.EventReservationComplete, pub.events[0].Type)
	assert.Equal(t, string(model.StatusCompleted), pub.events[0].Status)

	// A second sweep finds nothing left to do.
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	db := testutil.NewDB(t)
	s := &CompletionSweeper{
		Store:    repository.NewReservationRepo(db),
		Interval: 10 * time.Millisecond,
		Log:      zerolog.Nop(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
