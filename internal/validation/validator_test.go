package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type bookingForm struct {
	Date  string `json:"date" validate:"required,date"`
	Start string `json:"start_time" validate:"required,clock"`
	Email string `json:"email" validate:"omitempty,email"`
	Name  string `json:"name" validate:"max=5"`
	Price int64  `json:"price" validate:"min=1"`
}

func TestEchoValidator(t *testing.T) {
	v := NewEchoValidator()

	ok := bookingForm{Date: "2026-03-03", Start: "10:00", Name: "Budi", Price: 1}
	assert.NoError(t, v.Validate(ok))

	tests := []struct {
		name string
		in   bookingForm
		want string
	}{
		{"missing date", bookingForm{Start: "10:00", Price: 1}, "date: field is required"},
		{"bad date", bookingForm{Date: "03-03-2026", Start: "10:00", Price: 1}, "date: invalid format"},
		{"bad clock", bookingForm{Date: "2026-03-03", Start: "10am", Price: 1}, "start_time: invalid format"},
		{"bad email", bookingForm{Date: "2026-03-03", Start: "10:00", Email: "nope", Price: 1}, "email: invalid format"},
		{"long name", bookingForm{Date: "2026-03-03", Start: "10:00", Name: "Budiman", Price: 1}, "name: field exceeds maximum length"},
		{"low price", bookingForm{Date: "2026-03-03", Start: "10:00"}, "price: field is below minimum value"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.in)
			if assert.Error(t, err) {
				assert.Equal(t, tc.want, err.Error())
			}
		})
	}
}
