package booking

import (
	"strings"
	"time"

	"github.com/iliyamo/field-reservation/internal/model"
)

// DeriveStatus maps a payment status onto the reservation status it
// implies.  The mapping is total and overrides whatever status the
// reservation had before.
func DeriveStatus(p model.PaymentStatus) model.Status {
	switch p {
	case model.PaymentPaid:
		return model.StatusConfirmed
	case model.PaymentRefunded:
		return model.StatusCancelled
	default:
		return model.StatusPending
	}
}

// EndsAt returns the wall-clock moment a reservation ends in loc.
func EndsAt(r model.Reservation, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(r.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return time.Time{}, err
	}
	return At(day, end), nil
}

// CanComplete reports whether a confirmed reservation has already ended.
func CanComplete(r model.Reservation, now time.Time, loc *time.Location) bool {
	if r.Status != model.StatusConfirmed {
		return false
	}
	end, err := EndsAt(r, loc)
	if err != nil {
		return false
	}
	return !end.After(now)
}

// AppendAdminNote appends an administrator note to existing payment notes.
func AppendAdminNote(existing *string, note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	line := "[Admin]: " + note
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &line
	}
	joined := *existing + "\n" + line
	return &joined
}
