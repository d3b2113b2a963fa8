package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of reservation dates.
const DateLayout = "2006-01-02"

// ParseClock converts "HH:MM" into minutes after midnight.  "24:00" is
// accepted as the end of the day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || !twoDigits(hh) || !twoDigits(mm) {
		return 0, ErrInvalidClock
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, ErrInvalidClock
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, ErrInvalidClock
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, ErrInvalidClock
	}
	return h*60 + m, nil
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// At returns the wall-clock moment minutes after midnight on day's calendar
// date, in day's location.  The hours are counted on the clock, not as
// elapsed time, so DST transitions do not shift the result; 24:00 is
// midnight of the next day.
func At(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatHour renders an hour as "HH:00".
func FormatHour(h int) string { return FormatClock(h * 60) }

// ParseDate parses a "YYYY-MM-DD" calendar day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// TimeRange is a half-open [Start, End) interval in minutes after midnight.
type TimeRange struct {
	Start int
	End   int
}

// ParseRange parses a start/end pair and requires start < end.
func ParseRange(start, end string) (TimeRange, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if s >= e {
		return TimeRange{}, ErrInvalidRange
	}
	return TimeRange{Start: s, End: e}, nil
}

// HourRange returns the range covering hours [from, to).
func HourRange(from, to int) TimeRange { return TimeRange{Start: from * 60, End: to * 60} }

// Overlaps reports whether two half-open ranges intersect.  Ranges that
// only touch at an endpoint do not overlap.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && r.End > o.Start
}

// WholeHours reports whether both ends fall on the hour.
func (r TimeRange) WholeHours() bool { return r.Start%60 == 0 && r.End%60 == 0 }

// Hours returns the duration of the range in whole hours.
func (r TimeRange) Hours() int { return (r.End - r.Start) / 60 }

// StartClock and EndClock render the range ends as "HH:MM".
func (r TimeRange) StartClock() string { return FormatClock(r.Start) }
func (r TimeRange) EndClock() string   { return FormatClock(r.End) }
