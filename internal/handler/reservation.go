package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/config"
	"github.com/iliyamo/field-reservation/internal/metrics"
	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/queue"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/service"
	"github.com/iliyamo/field-reservation/internal/storage"
	"github.com/iliyamo/field-reservation/internal/utils"
)

// ReservationTokenHeader carries the access token handed out when a
// reservation is created.  It lets a guest act on that one reservation.
const ReservationTokenHeader = "X-Reservation-Token"

// ReservationHandler serves booking creation, payment proof uploads and the
// customer's own reservation views.  Identity comes only from the verified
// JWT (or the reservation access token for proof uploads).
type ReservationHandler struct {
	Cfg          config.Config
	Users        *repository.UserRepo
	Fields       *repository.FieldRepo
	Reservations *repository.ReservationRepo
	Store        *storage.LocalStore
	Events       service.Publisher
	Now          Clock
}

type createReservationReq struct {
	FieldID   uint64 `json:"field_id" validate:"required"`
	Date      string `json:"date" validate:"required,date"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
	Notes     string `json:"notes" validate:"max=1000"`

	// Guest contact details, required when the request is anonymous.
	Name  string  `json:"name" validate:"max=100"`
	Email string  `json:"email" validate:"omitempty,email,max=191"`
	Phone *string `json:"phone" validate:"omitempty,max=30"`
}

type createReservationResp struct {
	Reservation reservationResp `json:"reservation"`
	AccessToken string          `json:"access_token"`
}

func (h *ReservationHandler) publish(ctx context.Context, typ string, r model.Reservation, fieldName string) {
	if h.Events == nil {
		return
	}
	ev := queue.NewReservationEvent(typ, r, fieldName, h.Now.now())
	if err := h.Events.Publish(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", typ).Msg("publish event")
	}
}

// Create handles POST /v1/reservations.  The server derives the price from
// the field's rate, validates the requested range and inserts the
// reservation with the conflict check in one transaction.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationReq
	if msg, ok := bindValid(c, &req); !ok {
		metrics.IncBooking(metrics.OutcomeRejected)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	log := zerolog.Ctx(ctx)

	user, status, msg := h.resolveBooker(ctx, c, req)
	if user == nil {
		metrics.IncBooking(metrics.OutcomeRejected)
		return c.JSON(status, echo.Map{"error": msg})
	}

	field, err := h.Fields.GetActive(ctx, req.FieldID)
	if err != nil {
		if errors.Is(err, repository.ErrFieldNotFound) {
			metrics.IncBooking(metrics.OutcomeRejected)
			return c.JSON(http.StatusNotFound, echo.Map{"error": "field not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	policy := booking.Policy{
		Hours:      booking.HoursOf(*field),
		WindowDays: h.Cfg.WindowDays,
		Now:        h.Now.now(),
		Location:   h.Cfg.Location,
	}
	tr, err := policy.Validate(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		metrics.IncBooking(metrics.OutcomeRejected)
		if status, msg, ok := bookingStatus(err); ok {
			return c.JSON(status, echo.Map{"error": msg})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	token, err := utils.NewReservationToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	notes := strings.TrimSpace(req.Notes)
	res := &model.Reservation{
		UserID:     user.ID,
		FieldID:    field.ID,
		Date:       req.Date,
		StartTime:  tr.StartClock(),
		EndTime:    tr.EndClock(),
		TotalPrice: booking.TotalPrice(tr, field.PricePerHour),
		Notes:      trimmedPtr(&notes),
	}
	if err := h.Reservations.CreateChecked(ctx, res, utils.HashToken(token.Raw)); err != nil {
		if status, msg, ok := bookingStatus(err); ok {
			if status == http.StatusConflict {
				metrics.IncBooking(metrics.OutcomeConflict)
			} else {
				metrics.IncBooking(metrics.OutcomeRejected)
			}
			return c.JSON(status, echo.Map{"error": msg})
		}
		log.Error().Err(err).Uint64("field_id", field.ID).Msg("create reservation")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create reservation"})
	}
	metrics.IncBooking(metrics.OutcomeCreated)
	log.Info().Uint64("reservation_id", res.ID).Uint64("field_id", field.ID).
		Str("date", res.Date).Str("start", res.StartTime).Str("end", res.EndTime).Msg("reservation created")
	h.publish(ctx, queue.EventReservationCreated, *res, field.Name)

	return c.JSON(http.StatusCreated, createReservationResp{
		Reservation: toReservationResp(*res),
		AccessToken: token.Raw,
	})
}

// resolveBooker returns the authenticated user or, for anonymous requests,
// the account registered under the guest email (created on first use).
func (h *ReservationHandler) resolveBooker(ctx context.Context, c echo.Context, req createReservationReq) (*model.User, int, string) {
	if uid, err := getUserID(c); err == nil {
		u, err := h.Users.GetByID(ctx, uid)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, http.StatusUnauthorized, "unauthorized"
			}
			return nil, http.StatusInternalServerError, "database error"
		}
		if !u.IsActive {
			return nil, http.StatusForbidden, "account disabled"
		}
		return u, 0, ""
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, http.StatusBadRequest, "name and email are required for guest bookings"
	}
	u, err := h.Users.FindOrCreateGuest(ctx, name, email, trimmedPtr(req.Phone), h.Cfg.BcryptCost)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("guest booking: resolve user")
		return nil, http.StatusInternalServerError, "database error"
	}
	if !u.IsActive {
		return nil, http.StatusForbidden, "account disabled"
	}
	return u, 0, ""
}

// canAccess reports whether the caller may act on r: its owner, an admin,
// or a holder of the reservation's access token.
func (h *ReservationHandler) canAccess(ctx context.Context, c echo.Context, r *model.Reservation) (bool, error) {
	if uid, err := getUserID(c); err == nil {
		if uid == r.UserID || isAdmin(c) {
			return true, nil
		}
	}
	raw := strings.TrimSpace(c.Request().Header.Get(ReservationTokenHeader))
	if raw == "" {
		return false, nil
	}
	return h.Reservations.MatchAccessToken(ctx, r.ID, utils.HashToken(raw))
}

// UploadPaymentProof handles POST /v1/reservations/:id/payment-proof.  The
// multipart form carries the image in "payment_proof" and optional
// "payment_notes".  A new proof always returns the payment to PENDING,
// which in turn sets the reservation back to PENDING.
func (h *ReservationHandler) UploadPaymentProof(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	log := zerolog.Ctx(ctx)

	cur, err := h.Reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	allowed, err := h.canAccess(ctx, c, cur)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if cur.Status == model.StatusCompleted {
		return c.JSON(http.StatusConflict, echo.Map{"error": repository.ErrReservationClosed.Error()})
	}

	fh, err := c.FormFile("payment_proof")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_proof file is required"})
	}
	url, err := h.Store.SaveImage(fh, "payments", "payment")
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrEmptyFile), errors.Is(err, storage.ErrNotImage), errors.Is(err, storage.ErrTooLarge):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		log.Error().Err(err).Uint64("reservation_id", id).Msg("save payment proof")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store file"})
	}

	upd := repository.PaymentUpdate{Status: model.PaymentPending, Proof: &url}
	if notes := strings.TrimSpace(c.FormValue("payment_notes")); notes != "" {
		upd.Notes = &notes
	}
	updated, err := h.Reservations.UpdatePaymentStatus(ctx, id, upd)
	if err != nil {
		_ = h.Store.Remove(url)
		if status, msg, ok := bookingStatus(err); ok {
			return c.JSON(status, echo.Map{"error": msg})
		}
		log.Error().Err(err).Uint64("reservation_id", id).Msg("record payment proof")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update reservation"})
	}
	if cur.PaymentProof != nil && *cur.PaymentProof != url {
		if err := h.Store.Remove(*cur.PaymentProof); err != nil {
			log.Warn().Err(err).Str("path", *cur.PaymentProof).Msg("remove old payment proof")
		}
	}
	metrics.IncPaymentUpdate(string(updated.PaymentStatus))
	h.publish(ctx, queue.EventPaymentUploaded, *updated, "")

	return c.JSON(http.StatusOK, toReservationResp(*updated))
}

// ListMine handles GET /v1/my-reservations.  Supports ?status= and
// ?payment_status= filters and pagination.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	q := repository.ReservationQuery{UserID: uid}
	if s := c.QueryParam("status"); s != "" {
		st, ok := model.ParseStatus(s)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
		q.Status = st
	}
	if s := c.QueryParam("payment_status"); s != "" {
		ps, ok := model.ParsePaymentStatus(s)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment_status"})
		}
		q.PaymentStatus = ps
	}
	q.Page, q.PageSize = pageParams(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, total, err := h.Reservations.List(ctx, q)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list reservations"})
	}
	return c.JSON(http.StatusOK, pageResp{Items: toReservationDetailList(list), Total: total, Page: q.Page, PageSize: q.PageSize})
}

// Get handles GET /v1/reservations/:id for the owner or an admin.  Other
// callers receive 404 so reservation ids cannot be probed.
func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
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
	if d.UserID != uid && !isAdmin(c) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	return c.JSON(http.StatusOK, toReservationDetailResp(*d))
}
