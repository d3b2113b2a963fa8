package booking

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-reservation/internal/model"
)

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, model.StatusConfirmed, DeriveStatus(model.PaymentPaid))
	assert.Equal(t, model.StatusCancelled, DeriveStatus(model.PaymentRefunded))
	assert.Equal(t, model.StatusPending, DeriveStatus(model.PaymentPending))
}

func TestCanComplete(t *testing.T) {
	loc := time.UTC
	r := model.Reservation{Date: "2026-03-02", StartTime: "10:00", EndTime: "12:00", Status: model.StatusConfirmed}

	assert.False(t, CanComplete(r, time.Date(2026, 3, 2, 11, 59, 0, 0, loc), loc))
	assert.True(t, CanComplete(r, time.Date(2026, 3, 2, 12, 0, 0, 0, loc), loc))
	assert.True(t, CanComplete(r, time.Date(2026, 3, 5, 0, 0, 0, 0, loc), loc))

	r.Status = model.StatusPending
	assert.False(t, CanComplete(r, time.Date(2026, 3, 5, 0, 0, 0, 0, loc), loc))
}

func TestCanComplete_DSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	r := model.Reservation{Date: "2026-03-08", StartTime: "10:00", EndTime: "12:00", Status: model.StatusConfirmed}

	assert.False(t, CanComplete(r, time.Date(2026, 3, 8, 11, 30, 0, 0, ny), ny))
	assert.True(t, CanComplete(r, time.Date(2026, 3, 8, 12, 0, 0, 0, ny), ny))

	end, err := EndsAt(r, ny)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 16, 0, 0, 0, time.UTC), end.UTC())
}

func TestAppendAdminNote(t *testing.T) {
	assert.Nil(t, AppendAdminNote(nil, "  "))

	n := AppendAdminNote(nil, "transfer verified")
	assert.Equal(t, "[Admin]: transfer verified", *n)

	existing := "paid from BCA"
	n = AppendAdminNote(&existing, "ok")
	assert.Equal(t, "paid from BCA\n[Admin]: ok", *n)
}
