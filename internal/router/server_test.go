package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-reservation/internal/config"
	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/testutil"
	"github.com/iliyamo/field-reservation/internal/utils"
)

const (
	secret      = "test-secret"
	bookingDate = "2026-03-03"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type testServer struct {
	t     *testing.T
	e     *echo.Echo
	users *repository.UserRepo
	admin string // bearer token
	field uint64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLimit(t, config.RateLimitConfig{})
}

func newTestServerWithLimit(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.Config{
		Env:            "test",
		JWTSecret:      secret,
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
		Location:       time.UTC,
		WindowDays:     28,
		UploadDir:      t.TempDir(),
		UploadMaxBytes: 1 << 20,
	}
	e := NewServer(Deps{
		Cfg:       cfg,
		RateLimit: rl,
		DB:        db,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return fixedNow },
	})

	users := repository.NewUserRepo(db)
	admin, err := users.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "admin-pass", 4)
	require.NoError(t, err)
	tok, err := utils.NewAccessToken(secret, admin.ID, model.RoleAdmin, 15)
	require.NoError(t, err)

	return &testServer{
		t:     t,
		e:     e,
		users: users,
		admin: tok.Token,
		field: testutil.InsertField(t, db, "Futsal A", 150000),
	}
}

func (s *testServer) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type reservationBody struct {
	ID            uint64 `json:"id"`
	UserID        uint64 `json:"user_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	TotalPrice    int64  `json:"total_price"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentProof  string `json:"payment_proof"`
	PaymentNotes  string `json:"payment_notes"`
}

type createdBody struct {
	Reservation reservationBody `json:"reservation"`
	AccessToken string          `json:"access_token"`
}

type scheduleBody struct {
	Schedule []struct {
		Date      string `json:"date"`
		TimeSlots []struct {
			Time          string  `json:"time"`
			Available     bool    `json:"available"`
			Price         int64   `json:"price"`
			Status        string  `json:"status"`
			ReservationID *uint64 `json:"reservation_id"`
		} `json:"time_slots"`
	} `json:"schedule"`
}

func guestBooking(fieldID uint64, start, end string) map[string]any {
	return map[string]any{
		"field_id":   fieldID,
		"date":       bookingDate,
		"start_time": start,
		"end_time":   end,
		"name":       "Budi",
		"email":      "budi@example.com",
		"phone":      "0812",
	}
}

func (s *testServer) book(start, end string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/v1/reservations", "", guestBooking(s.field, start, end))
}

func (s *testServer) setPayment(id uint64, status, notes string) *httptest.ResponseRecorder {
	return s.do(http.MethodPatch, fmt.Sprintf("/v1/admin/reservations/%d/payment", id), s.admin,
		map[string]any{"payment_status": status, "admin_notes": notes})
}

func TestScheduleWithoutReservations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, fmt.Sprintf("/v1/fields/%d/schedule", s.field), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[scheduleBody](t, rec)

	require.Len(t, body.Schedule, 28)
	assert.Equal(t, "2026-03-01", body.Schedule[0].Date)
	day := body.Schedule[0].TimeSlots
	require.Len(t, day, 14)
	assert.Equal(t, "08:00", day[0].Time)
	assert.Equal(t, "21:00", day[13].Time)
	for _, slot := range day {
		assert.True(t, slot.Available)
		assert.Equal(t, int64(150000), slot.Price)
		assert.Equal(t, "available", slot.Status)
	}

	legacy := s.do(http.MethodGet, fmt.Sprintf("/v1/schedule?field_id=%d", s.field), "", nil)
	assert.Equal(t, http.StatusOK, legacy.Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/schedule", "", nil).Code)
}

func TestBookingLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.book("10:00", "12:00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[createdBody](t, rec)
	assert.Equal(t, "PENDING", first.Reservation.Status)
	assert.Equal(t, "PENDING", first.Reservation.PaymentStatus)
	assert.Equal(t, int64(300000), first.Reservation.TotalPrice)
	assert.NotEmpty(t, first.AccessToken)

	guest, err := s.users.GetByEmail(context.Background(), "budi@example.com")
	require.NoError(t, err)
	assert.True(t, guest.IsGuest)
	assert.Equal(t, guest.ID, first.Reservation.UserID)

	t.Run("pending reservation blocks the schedule", func(t *testing.T) {
		rec := s.do(http.MethodGet, fmt.Sprintf("/v1/fields/%d/schedule", s.field), "", nil)
		body := decode[scheduleBody](t, rec)
		day := body.Schedule[2]
		require.Equal(t, bookingDate, day.Date)
		booked := map[string]bool{}
		for _, slot := range day.TimeSlots {
			if !slot.Available {
				booked[slot.Time] = true
				require.NotNil(t, slot.ReservationID)
				assert.Equal(t, first.Reservation.ID, *slot.ReservationID)
			}
		}
		assert.Equal(t, map[string]bool{"10:00": true, "11:00": true}, booked)
	})

	t.Run("paid confirms", func(t *testing.T) {
		rec := s.setPayment(first.Reservation.ID, "PAID", "transfer verified")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		r := decode[reservationBody](t, rec)
		assert.Equal(t, "CONFIRMED", r.Status)
		assert.Equal(t, "PAID", r.PaymentStatus)
		assert.Equal(t, "[Admin]: transfer verified", r.PaymentNotes)
	})

	t.Run("overlap rejected and adjacent accepted", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, s.book("11:00", "13:00").Code)
		assert.Equal(t, http.StatusConflict, s.book("09:00", "11:00").Code)
		assert.Equal(t, http.StatusCreated, s.book("12:00", "14:00").Code)
	})

	t.Run("proof upload with access token resets to pending", func(t *testing.T) {
		rec := s.uploadProof(first.Reservation.ID, first.AccessToken, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		r := decode[reservationBody](t, rec)
		assert.Equal(t, "PENDING", r.Status)
		assert.Equal(t, "PENDING", r.PaymentStatus)
		assert.Contains(t, r.PaymentProof, "/uploads/payments/")
	})

	t.Run("proof upload requires a credential", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, s.uploadProof(first.Reservation.ID, "wrong", "").Code)
		assert.Equal(t, http.StatusForbidden, s.uploadProof(first.Reservation.ID, "", "").Code)
		assert.Equal(t, http.StatusOK, s.uploadProof(first.Reservation.ID, "", s.admin).Code)
	})

	t.Run("refund cancels and frees the slot", func(t *testing.T) {
		rec := s.setPayment(first.Reservation.ID, "REFUNDED", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "CANCELLED", decode[reservationBody](t, rec).Status)
		assert.Equal(t, http.StatusCreated, s.book("10:00", "11:00").Code)

		// Reviving the refunded booking would now overlap.
		assert.Equal(t, http.StatusConflict, s.setPayment(first.Reservation.ID, "PAID", "").Code)
	})
}

func (s *testServer) uploadProof(id uint64, accessToken, bearer string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="payment_proof"; filename="proof.png"`}
	h["Content-Type"] = []string{"image/png"}
	part, err := w.CreatePart(h)
	require.NoError(s.t, err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...))
	require.NoError(s.t, err)
	require.NoError(s.t, w.WriteField("payment_notes", "BCA transfer"))
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/reservations/%d/payment-proof", id), &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if accessToken != "" {
		req.Header.Set("X-Reservation-Token", accessToken)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestBookingValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"half hour", guestBooking(s.field, "10:30", "11:30"), http.StatusBadRequest},
		{"end before start", guestBooking(s.field, "12:00", "10:00"), http.StatusBadRequest},
		{"before opening", guestBooking(s.field, "07:00", "09:00"), http.StatusBadRequest},
		{"after closing", guestBooking(s.field, "21:00", "23:00"), http.StatusBadRequest},
		{"bad clock", guestBooking(s.field, "10", "11:00"), http.StatusBadRequest},
		{"unknown field", guestBooking(9999, "10:00", "11:00"), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/v1/reservations", "", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}

	t.Run("past slot", func(t *testing.T) {
		body := guestBooking(s.field, "08:00", "09:00")
		body["date"] = "2026-03-01"
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/reservations", "", body).Code)
	})

	t.Run("outside window", func(t *testing.T) {
		body := guestBooking(s.field, "10:00", "11:00")
		body["date"] = "2026-04-15"
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/reservations", "", body).Code)
	})

	t.Run("guest needs contact details", func(t *testing.T) {
		body := guestBooking(s.field, "10:00", "11:00")
		delete(body, "email")
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/reservations", "", body).Code)
	})

	t.Run("client total is ignored", func(t *testing.T) {
		body := guestBooking(s.field, "15:00", "16:00")
		body["total_price"] = 1
		rec := s.do(http.MethodPost, "/v1/reservations", "", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, int64(150000), decode[createdBody](t, rec).Reservation.TotalPrice)
	})
}

func TestRegisteredUserFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name": "Sari", "email": "Sari@Example.com", "password": "secret1", "role": "ADMIN",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	auth := decode[struct {
		User struct {
			ID   uint64 `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}](t, rec)
	assert.Equal(t, model.RoleUser, auth.User.Role)
	token := auth.Access.Token

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name": "Sari", "email": "sari@example.com", "password": "secret1",
	}).Code)

	rec = s.do(http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "sari@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "sari@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/v1/reservations", token, map[string]any{
		"field_id": s.field, "date": bookingDate, "start_time": "18:00", "end_time": "20:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mine := decode[createdBody](t, rec).Reservation
	assert.Equal(t, auth.User.ID, mine.UserID)

	rec = s.do(http.MethodGet, "/v1/my-reservations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []reservationBody `json:"items"`
		Total int64             `json:"total"`
	}](t, rec)
	assert.EqualValues(t, 1, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, mine.ID, list.Items[0].ID)

	// A guest booking by someone else is invisible to this user.
	other := decode[createdBody](t, s.book("08:00", "09:00")).Reservation
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/v1/reservations/%d", other.ID), token, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/v1/reservations/%d", mine.ID), token, nil).Code)

	// Customers cannot reach admin routes or change payment.
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/admin/dashboard", token, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch,
		fmt.Sprintf("/v1/admin/reservations/%d/payment", mine.ID), token, map[string]any{"payment_status": "PAID"}).Code)

	// Guest accounts cannot log in.
	rec = s.do(http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "budi@example.com", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminFieldDeleteGuard(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/admin/fields", s.admin, map[string]any{
		"name": "Badminton 1", "location": "Hall B", "price_per_hour": 80000,
		"facilities": []string{"AC", "Parking", "AC"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		ID         uint64   `json:"id"`
		OpenHour   int      `json:"open_hour"`
		CloseHour  int      `json:"close_hour"`
		Facilities []string `json:"facilities"`
	}](t, rec)
	assert.Equal(t, 8, created.OpenHour)
	assert.Equal(t, 22, created.CloseHour)
	assert.ElementsMatch(t, []string{"AC", "Parking"}, created.Facilities)

	require.Equal(t, http.StatusCreated, s.book("10:00", "11:00").Code)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/v1/admin/fields/%d", s.field), s.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/v1/fields/%d", s.field), "", nil).Code)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/v1/admin/fields/%d", created.ID), s.admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/v1/admin/fields/%d", created.ID), s.admin, nil).Code)
}

func TestAdminFieldToggleHidesField(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPatch, fmt.Sprintf("/v1/admin/fields/%d/toggle", s.field), s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"is_active":false}`, s.field), rec.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/v1/fields/%d", s.field), "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.book("10:00", "11:00").Code)

	rec = s.do(http.MethodGet, "/v1/fields", "", nil)
	assert.EqualValues(t, 0, decode[struct {
		Total int64 `json:"total"`
	}](t, rec).Total)
}

func TestAdminDashboardAndExport(t *testing.T) {
	s := newTestServer(t)

	r := decode[createdBody](t, s.book("10:00", "12:00")).Reservation
	require.Equal(t, http.StatusOK, s.setPayment(r.ID, "PAID", "").Code)

	rec := s.do(http.MethodGet, "/v1/admin/dashboard", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_users":1,"bookings_today":0,"revenue":300000,"active_fields":1,"date":"2026-03-01"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/admin/reservations?status=CONFIRMED", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[struct {
		Total int64 `json:"total"`
	}](t, rec).Total)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/admin/reservations?status=LOST", s.admin, nil).Code)

	rec = s.do(http.MethodGet, "/v1/admin/reservations/export", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "reservations-20260301-093000.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestRateLimitPerUser(t *testing.T) {
	s := newTestServerWithLimit(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	})
	other, err := s.users.EnsureAdmin(context.Background(), "Second", "second@example.com", "admin-pass", 4)
	require.NoError(t, err)
	tok, err := utils.NewAccessToken(secret, other.ID, model.RoleAdmin, 15)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me", s.admin, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me", s.admin, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/v1/me", s.admin, nil).Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me", tok.Token, nil).Code)
}
