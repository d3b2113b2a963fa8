package model

import (
	"strings"
	"time"
)

// Status is the booking state of a reservation.
type Status string

// Reservation statuses.  PENDING and CONFIRMED occupy the booked slots;
// CANCELLED and COMPLETED release them.
const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// PaymentStatus is the verification state of the bank-transfer proof.
type PaymentStatus string

// Payment statuses.
const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// BlockingStatuses lists the statuses whose reservations occupy slots.
var BlockingStatuses = []Status{StatusPending, StatusConfirmed}

// Blocking reports whether a reservation in this status occupies its slots.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ParseStatus normalizes s and reports whether it is a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// ParsePaymentStatus normalizes s and reports whether it is a known payment status.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	ps := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch ps {
	case PaymentPending, PaymentPaid, PaymentRefunded:
		return ps, true
	}
	return "", false
}

// Reservation records a booking of one field for a contiguous range of
// hours on a single calendar day.  Times are wall-clock "HH:MM" strings
// without any time zone; Date is "YYYY-MM-DD".  TotalPrice is derived at
// creation time and never recomputed.
//
// Fields:
//
//	ID            – primary key identifier.
//	UserID        – user who made the reservation.
//	FieldID       – field being reserved.
//	Date          – reservation day (YYYY-MM-DD).
//	StartTime     – inclusive start (HH:MM).
//	EndTime       – exclusive end (HH:MM).
//	TotalPrice    – hours × price per hour at booking time.
//	Status        – PENDING, CONFIRMED, CANCELLED or COMPLETED.
//	PaymentStatus – PENDING, PAID or REFUNDED.
//	PaymentProof  – public path of the uploaded transfer proof.
//	PaymentNotes  – customer and admin notes about the payment.
//	Notes         – booking notes from the customer.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type Reservation struct {
	ID            uint64        // reservations.id
	UserID        uint64        // reservations.user_id
	FieldID       uint64        // reservations.field_id
	Date          string        // reservations.reservation_date
	StartTime     string        // reservations.start_time
	EndTime       string        // reservations.end_time
	TotalPrice    int64         // reservations.total_price
	Status        Status        // reservations.status
	PaymentStatus PaymentStatus // reservations.payment_status
	PaymentProof  *string       // reservations.payment_proof (nullable)
	PaymentNotes  *string       // reservations.payment_notes (nullable)
	Notes         *string       // reservations.notes (nullable)
	CreatedAt     time.Time     // reservations.created_at
	UpdatedAt     time.Time     // reservations.updated_at
}
