package booking

import (
	"sort"
	"time"

	"github.com/iliyamo/field-reservation/internal/model"
)

// DefaultWindowDays is the number of days, starting today, customers may book.
const DefaultWindowDays = 28

// Slot status values exposed to clients.
const (
	SlotAvailable = "available"
	SlotBooked    = "booked"
)

// Hours is a field's daily operating range [Open, Close).
type Hours struct {
	Open  int
	Close int
}

// HoursOf returns the operating hours of f.
func HoursOf(f model.Field) Hours { return Hours{Open: f.OpenHour, Close: f.CloseHour} }

// Slot is one bookable hour of a day.
type Slot struct {
	Time          string  `json:"time"`
	Available     bool    `json:"available"`
	Price         int64   `json:"price"`
	Status        string  `json:"status"`
	ReservationID *uint64 `json:"reservation_id,omitempty"`
}

// DaySchedule holds the slots of one calendar day.
type DaySchedule struct {
	Date      string `json:"date"`
	TimeSlots []Slot `json:"time_slots"`
}

// GenerateSchedule builds the per-day hourly grid for a field starting at
// the calendar day of from.  Reservations outside the window or in a
// non-blocking status are ignored.  The result depends only on its inputs.
func GenerateSchedule(hours Hours, price int64, from time.Time, days int, reservations []model.Reservation) []DaySchedule {
	if days <= 0 {
		return []DaySchedule{}
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())

	type booked struct {
		id uint64
		r  TimeRange
	}
	byDate := make(map[string][]booked)
	for _, res := range reservations {
		if !res.Status.Blocking() {
			continue
		}
		tr, err := ParseRange(res.StartTime, res.EndTime)
		if err != nil {
			continue
		}
		byDate[res.Date] = append(byDate[res.Date], booked{id: res.ID, r: tr})
	}
	for _, list := range byDate {
		sort.Slice(list, func(i, j int) bool {
			if list[i].r.Start != list[j].r.Start {
				return list[i].r.Start < list[j].r.Start
			}
			return list[i].id < list[j].id
		})
	}

	out := make([]DaySchedule, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(DateLayout)
		day := DaySchedule{Date: date, TimeSlots: make([]Slot, 0, max(hours.Close-hours.Open, 0))}
		for h := hours.Open; h < hours.Close; h++ {
			slot := Slot{Time: FormatHour(h), Available: true, Price: price, Status: SlotAvailable}
			hr := HourRange(h, h+1)
			for _, b := range byDate[date] {
				if b.r.Overlaps(hr) {
					id := b.id
					slot.Available = false
					slot.Status = SlotBooked
					slot.ReservationID = &id
					break
				}
			}
			day.TimeSlots = append(day.TimeSlots, slot)
		}
		out = append(out, day)
	}
	return out
}

// Window returns the first and last bookable dates for a window of days
// starting at the calendar day of now.
func Window(now time.Time, days int) (first, last string) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if days < 1 {
		days = 1
	}
	return today.Format(DateLayout), today.AddDate(0, 0, days-1).Format(DateLayout)
}
