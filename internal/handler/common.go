package handler // handler defines http handlers

import (
	"context"
	"errors" // errors provides sentinel values used in getUserID
	"net/http"
	"strconv" // strconv converts strings to numeric types
	"strings"
	"time"

	"github.com/labstack/echo/v4" // echo defines request context types

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/repository"
)

// dbTimeout bounds every database round trip made by a handler.
const dbTimeout = 5 * time.Second

// CachePurger drops cached public responses after the field catalogue
// changes.  middleware.ResponseCache satisfies it.
type CachePurger interface {
	Purge(ctx context.Context) error
}

// Clock returns the current time.  Handlers take one so tests can pin "now".
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		if t > 0 {
			return t, nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// isAdmin reports whether the verified token carries the ADMIN role.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get("role").(string)
	return role == model.RoleAdmin
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// bindValid binds the request body into dst and runs the registered
// validator.  The returned message is safe to show to clients.
func bindValid(c echo.Context, dst any) (string, bool) {
	if err := c.Bind(dst); err != nil {
		return "invalid request body", false
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(dst); err != nil {
			return err.Error(), false
		}
	}
	return "", true
}

// pageParams reads ?page= and ?page_size= (or ?limit=).
func pageParams(c echo.Context) (page, size int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	size, _ = strconv.Atoi(c.QueryParam("page_size"))
	if size == 0 {
		size, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

type pageResp struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// bookingStatus maps booking and repository errors raised while creating
// or changing a reservation to an HTTP status and message.  ok is false when
// err is not one of the known client errors.
func bookingStatus(err error) (status int, msg string, ok bool) {
	switch {
	case errors.Is(err, booking.ErrSlotConflict), errors.Is(err, repository.ErrReservationClosed):
		return http.StatusConflict, err.Error(), true
	case errors.Is(err, booking.ErrInvalidClock),
		errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, booking.ErrInvalidRange),
		errors.Is(err, booking.ErrNotWholeHour),
		errors.Is(err, booking.ErrOutsideHours),
		errors.Is(err, booking.ErrOutsideWindow),
		errors.Is(err, booking.ErrSlotInPast):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, repository.ErrFieldNotFound):
		return http.StatusNotFound, "field not found", true
	case errors.Is(err, repository.ErrReservationNotFound):
		return http.StatusNotFound, "reservation not found", true
	}
	return 0, "", false
}

// ----- response DTOs -----

type fieldResp struct {
	ID               uint64    `json:"id"`
	Name             string    `json:"name"`
	Description      *string   `json:"description"`
	Location         string    `json:"location"`
	PricePerHour     int64     `json:"price_per_hour"`
	ImageURL         *string   `json:"image_url"`
	Facilities       []string  `json:"facilities"`
	OpenHour         int       `json:"open_hour"`
	CloseHour        int       `json:"close_hour"`
	IsActive         bool      `json:"is_active"`
	ReservationCount *int64    `json:"reservation_count,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toFieldResp(f model.Field) fieldResp {
	facilities := f.Facilities
	if facilities == nil {
		facilities = []string{}
	}
	return fieldResp{
		ID: f.ID, Name: f.Name, Description: f.Description, Location: f.Location,
		PricePerHour: f.PricePerHour, ImageURL: f.ImageURL, Facilities: facilities,
		OpenHour: f.OpenHour, CloseHour: f.CloseHour, IsActive: f.IsActive,
		CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	}
}

type userResp struct {
	ID               uint64    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            *string   `json:"phone"`
	Role             string    `json:"role"`
	IsGuest          bool      `json:"is_guest"`
	IsActive         bool      `json:"is_active"`
	ReservationCount *int64    `json:"reservation_count,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role,
		IsGuest: u.IsGuest, IsActive: u.IsActive, CreatedAt: u.CreatedAt,
	}
}

type reservationResp struct {
	ID            uint64    `json:"id"`
	UserID        uint64    `json:"user_id"`
	FieldID       uint64    `json:"field_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	TotalPrice    int64     `json:"total_price"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	PaymentProof  *string   `json:"payment_proof"`
	PaymentNotes  *string   `json:"payment_notes"`
	Notes         *string   `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// joined attributes, present on list and detail endpoints
	UserName      string  `json:"user_name,omitempty"`
	UserEmail     string  `json:"user_email,omitempty"`
	UserPhone     *string `json:"user_phone,omitempty"`
	FieldName     string  `json:"field_name,omitempty"`
	FieldLocation string  `json:"field_location,omitempty"`
}

func toReservationResp(r model.Reservation) reservationResp {
	return reservationResp{
		ID: r.ID, UserID: r.UserID, FieldID: r.FieldID, Date: r.Date,
		StartTime: r.StartTime, EndTime: r.EndTime, TotalPrice: r.TotalPrice,
		Status: string(r.Status), PaymentStatus: string(r.PaymentStatus),
		PaymentProof: r.PaymentProof, PaymentNotes: r.PaymentNotes, Notes: r.Notes,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toReservationDetailResp(d repository.ReservationDetail) reservationResp {
	out := toReservationResp(d.Reservation)
	out.UserName = d.UserName
	out.UserEmail = d.UserEmail
	out.UserPhone = d.UserPhone
	out.FieldName = d.FieldName
	out.FieldLocation = d.FieldLocation
	return out
}

func toReservationDetailList(list []repository.ReservationDetail) []reservationResp {
	out := make([]reservationResp, 0, len(list))
	for _, d := range list {
		out = append(out, toReservationDetailResp(d))
	}
	return out
}

// trimmedPtr returns nil for blank strings.
func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
