package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		ObserveHTTP("/v1/fields", "GET", 200, 15*time.Millisecond)
		IncBooking(OutcomeConflict)
		IncPaymentUpdate("PAID")
		AddCompleted(2)
	})

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"field_reservation_http_requests_total",
		"field_reservation_http_request_duration_seconds",
		"field_reservation_bookings_total",
		"field_reservation_payment_updates_total",
		"field_reservation_reservations_completed_total",
	} {
		assert.True(t, names[want], want)
	}
}
