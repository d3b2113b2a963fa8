package booking

import "errors"

// Errors returned by request validation and the conflict checker.  Handlers
// map ErrSlotConflict to 409 and the rest to 400.
var (
	ErrSlotConflict  = errors.New("time slot is already booked")
	ErrInvalidClock  = errors.New("time must be formatted as HH:MM")
	ErrInvalidDate   = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidRange  = errors.New("start time must be before end time")
	ErrNotWholeHour  = errors.New("bookings must start and end on the hour")
	ErrOutsideHours  = errors.New("time range is outside the field's operating hours")
	ErrOutsideWindow = errors.New("date is outside the booking window")
	ErrSlotInPast    = errors.New("cannot book a slot in the past")
)
