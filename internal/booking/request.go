package booking

import "time"

// Policy holds the rules a booking request is checked against.
type Policy struct {
	Hours      Hours
	WindowDays int
	Now        time.Time
	Location   *time.Location
}

// Validate checks a requested date and time range against the policy and
// returns the parsed range.  It does not look at other reservations.
func (p Policy) Validate(date, start, end string) (TimeRange, error) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := ParseDate(date, loc)
	if err != nil {
		return TimeRange{}, err
	}
	tr, err := ParseRange(start, end)
	if err != nil {
		return TimeRange{}, err
	}
	if !tr.WholeHours() {
		return TimeRange{}, ErrNotWholeHour
	}
	if tr.Start < p.Hours.Open*60 || tr.End > p.Hours.Close*60 {
		return TimeRange{}, ErrOutsideHours
	}

	now := p.Now.In(loc)
	days := p.WindowDays
	if days <= 0 {
		days = DefaultWindowDays
	}
	first, last := Window(now, days)
	d := day.Format(DateLayout)
	if d < first || d > last {
		return TimeRange{}, ErrOutsideWindow
	}
	if At(day, tr.Start).Before(now) {
		return TimeRange{}, ErrSlotInPast
	}
	return tr, nil
}

// TotalPrice returns the price of a range at the given hourly rate.
func TotalPrice(tr TimeRange, pricePerHour int64) int64 {
	return int64(tr.Hours()) * pricePerHour
}
