// Package validation wires go-playground/validator into Echo and turns
// validation failures into short client-facing messages.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/field-reservation/internal/booking"
)

const (
	ErrInvalidFormat      = "invalid format"
	ErrFieldRequired      = "field is required"
	ErrFieldExceedsMaxLen = "field exceeds maximum length"
	ErrFieldBelowMinLen   = "field is below minimum length"
	ErrFieldExceedsMaxVal = "field exceeds maximum value"
	ErrFieldBelowMinVal   = "field is below minimum value"
	ErrUnknownValidation  = "invalid value"
)

// New returns a validator with the custom "clock" (HH:MM) and "date"
// (YYYY-MM-DD) tags.  Field names in messages use the json tag.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("clock", validateClock)
	_ = v.RegisterValidation("date", validateDate)
	return v
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := booking.ParseClock(fl.Field().String())
	return err == nil
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := booking.ParseDate(fl.Field().String(), nil)
	return err == nil
}

// EchoValidator adapts a validator to echo.Validator.
type EchoValidator struct {
	v *validator.Validate
}

// NewEchoValidator returns an echo.Validator backed by New().
func NewEchoValidator() *EchoValidator { return &EchoValidator{v: New()} }

// Validate implements echo.Validator.
func (e *EchoValidator) Validate(i any) error {
	return parseValidationErrors(e.v.Struct(i))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return err
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "max":
		if isNumber(ve.Kind()) {
			msg = ErrFieldExceedsMaxVal
		} else {
			msg = ErrFieldExceedsMaxLen
		}
	case "min":
		if isNumber(ve.Kind()) {
			msg = ErrFieldBelowMinVal
		} else {
			msg = ErrFieldBelowMinLen
		}
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "email", "clock", "date", "oneof":
		msg = ErrInvalidFormat
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(ve.Field() + ": " + msg)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
