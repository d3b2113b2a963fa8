package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/export"
	"github.com/iliyamo/field-reservation/internal/metrics"
	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/queue"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/service"
	"github.com/iliyamo/field-reservation/internal/storage"
)

// AdminReservationHandler lets administrators review bookings and verify
// payments.  Status is never written directly: payment changes go through
// ReservationRepo.UpdatePaymentStatus, which derives it.
type AdminReservationHandler struct {
	Reservations *repository.ReservationRepo
	Users        *repository.UserRepo
	Fields       *repository.FieldRepo
	Store        *storage.LocalStore
	Events       service.Publisher
	Location     *time.Location
	Now          Clock
}

type updatePaymentReq struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
	AdminNotes    string `json:"admin_notes" validate:"max=1000"`
}

type updateNotesReq struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

type dashboardResp struct {
	TotalUsers    int64  `json:"total_users"`
	BookingsToday int64  `json:"bookings_today"`
	Revenue       int64  `json:"revenue"`
	ActiveFields  int64  `json:"active_fields"`
	Date          string `json:"date"`
}

func (h *AdminReservationHandler) publish(ctx context.Context, typ string, r model.Reservation) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Publish(ctx, queue.NewReservationEvent(typ, r, "", h.Now.now())); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", typ).Msg("publish event")
	}
}

// query builds a repository query from ?field_id, ?user_id, ?date, ?status,
// ?payment_status and ?q.
func reservationQuery(c echo.Context) (repository.ReservationQuery, string) {
	var q repository.ReservationQuery
	if s := c.QueryParam("field_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return q, "invalid field_id"
		}
		q.FieldID = id
	}
	if s := c.QueryParam("user_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return q, "invalid user_id"
		}
		q.UserID = id
	}
	if s := c.QueryParam("date"); s != "" {
		if _, err := booking.ParseDate(s, nil); err != nil {
			return q, err.Error()
		}
		q.Date = s
	}
	if s := c.QueryParam("status"); s != "" {
		st, ok := model.ParseStatus(s)
		if !ok {
			return q, "invalid status"
		}
		q.Status = st
	}
	if s := c.QueryParam("payment_status"); s != "" {
		ps, ok := model.ParsePaymentStatus(s)
		if !ok {
			return q, "invalid payment_status"
		}
		q.PaymentStatus = ps
	}
	q.Search = c.QueryParam("q")
	return q, ""
}

// List handles GET /v1/admin/reservations.
func (h *AdminReservationHandler) List(c echo.Context) error {
	q, msg := reservationQuery(c)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	q.Page, q.PageSize = pageParams(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, total, err := h.Reservations.List(ctx, q)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("admin: list reservations")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list reservations"})
	}
	return c.JSON(http.StatusOK, pageResp{Items: toReservationDetailList(list), Total: total, Page: q.Page, PageSize: q.PageSize})
}

// Get handles GET /v1/admin/reservations/:id.
func (h *AdminReservationHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	d, err := h.Reservations.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toReservationDetailResp(*d))
}

// UpdatePayment handles PATCH /v1/admin/reservations/:id/payment.  The
// reservation status follows from the payment status; admin notes are
// appended to the payment notes.
func (h *AdminReservationHandler) UpdatePayment(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var req updatePaymentReq
	if msg, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ps, ok := model.ParsePaymentStatus(req.PaymentStatus)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment_status"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	updated, err := h.Reservations.UpdatePaymentStatus(ctx, id, repository.PaymentUpdate{
		Status:    ps,
		AdminNote: req.AdminNotes,
	})
	if err != nil {
		if status, msg, ok := bookingStatus(err); ok {
			return c.JSON(status, echo.Map{"error": msg})
		}
		zerolog.Ctx(ctx).Error().Err(err).Uint64("reservation_id", id).Msg("admin: update payment")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update payment"})
	}
	metrics.IncPaymentUpdate(string(updated.PaymentStatus))
	zerolog.Ctx(ctx).Info().Uint64("reservation_id", id).
		Str("payment_status", string(updated.PaymentStatus)).Str("status", string(updated.Status)).
		Msg("payment status updated")
	h.publish(ctx, queue.EventPaymentUpdated, *updated)
	return c.JSON(http.StatusOK, toReservationResp(*updated))
}

// UpdateNotes handles PATCH /v1/admin/reservations/:id/notes.
func (h *AdminReservationHandler) UpdateNotes(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var req updateNotesReq
	if msg, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	updated, err := h.Reservations.UpdateNotes(ctx, id, trimmedPtr(req.Notes))
	if err != nil {
		if status, msg, ok := bookingStatus(err); ok {
			return c.JSON(status, echo.Map{"error": msg})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toReservationResp(*updated))
}

// Delete handles DELETE /v1/admin/reservations/:id and removes the stored
// payment proof with it.
func (h *AdminReservationHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	removed, err := h.Reservations.Delete(ctx, id)
	if err != nil {
		if status, msg, ok := bookingStatus(err); ok {
			return c.JSON(status, echo.Map{"error": msg})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if removed.PaymentProof != nil && h.Store != nil {
		if err := h.Store.Remove(*removed.PaymentProof); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("remove payment proof")
		}
	}
	h.publish(ctx, queue.EventReservationDeleted, *removed)
	return c.NoContent(http.StatusNoContent)
}

// Export handles GET /v1/admin/reservations/export and streams every
// reservation matching the list filters as an XLSX workbook.
func (h *AdminReservationHandler) Export(c echo.Context) error {
	q, msg := reservationQuery(c)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	q.All = true

	ctx, cancel := context.WithTimeout(c.Request().Context(), 6*dbTimeout)
	defer cancel()
	list, _, err := h.Reservations.List(ctx, q)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list reservations"})
	}

	var buf bytes.Buffer
	if err := export.WriteReservations(&buf, list); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("admin: export reservations")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "export failed"})
	}
	name := fmt.Sprintf("reservations-%s.xlsx", h.Now.now().In(h.loc()).Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *AdminReservationHandler) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// Dashboard handles GET /v1/admin/dashboard.
func (h *AdminReservationHandler) Dashboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	today := h.Now.now().In(h.loc()).Format(booking.DateLayout)
	out := dashboardResp{Date: today}
	var err error
	fail := func(err error) error {
		zerolog.Ctx(ctx).Error().Err(err).Msg("admin: dashboard")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if out.TotalUsers, err = h.Users.CountUsers(ctx); err != nil {
		return fail(err)
	}
	if out.BookingsToday, err = h.Reservations.CountOnDate(ctx, today); err != nil {
		return fail(err)
	}
	if out.Revenue, err = h.Reservations.PaidRevenue(ctx); err != nil {
		return fail(err)
	}
	if out.ActiveFields, err = h.Fields.CountActive(ctx); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, out)
}
