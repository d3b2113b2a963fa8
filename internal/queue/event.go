// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import (
	"time"

	"github.com/iliyamo/field-reservation/internal/model"
)

// Event types published for reservations.
const (
	EventReservationCreated  = "reservation.created"
	EventPaymentUploaded     = "reservation.payment_uploaded"
	EventPaymentUpdated      = "reservation.payment_updated"
	EventReservationComplete = "reservation.completed"
	EventReservationDeleted  = "reservation.deleted"
)

// ReservationEvent is published whenever a reservation is created or its
// state changes.  It carries enough information for downstream consumers
// to log, notify or trigger analytics without querying the database.
type ReservationEvent struct {
	Type          string `json:"type"`
	ReservationID uint64 `json:"reservation_id"`
	UserID        uint64 `json:"user_id"`
	FieldID       uint64 `json:"field_id"`
	FieldName     string `json:"field_name,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	TotalPrice    int64  `json:"total_price"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	OccurredAt    string `json:"occurred_at"`
}

// NewReservationEvent builds an event of the given type from a reservation.
func NewReservationEvent(typ string, r model.Reservation, fieldName string, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          typ,
		ReservationID: r.ID,
		UserID:        r.UserID,
		FieldID:       r.FieldID,
		FieldName:     fieldName,
		Date:          r.Date,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		TotalPrice:    r.TotalPrice,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}
