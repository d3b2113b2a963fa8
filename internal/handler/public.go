// Package handler exposes HTTP handlers for both authenticated and public endpoints.
// This file defines the public browsing API: the active field catalogue and
// each field's slot schedule.  Inactive fields are invisible here.

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/repository"
)

// PublicHandler aggregates repositories needed for unauthenticated browsing.
type PublicHandler struct {
	Fields       *repository.FieldRepo
	Reservations *repository.ReservationRepo
	Location     *time.Location // zone that defines "today"
	WindowDays   int
	Now          Clock
}

// scheduleResp is the body of the schedule endpoints.
type scheduleResp struct {
	Field    fieldResp             `json:"field"`
	From     string                `json:"from"`
	To       string                `json:"to"`
	Schedule []booking.DaySchedule `json:"schedule"`
}

// ListFields returns active fields.  Supports ?q= search and pagination.
func (h *PublicHandler) ListFields(c echo.Context) error {
	page, size := pageParams(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, total, err := h.Fields.List(ctx, repository.FieldQuery{
		Search:     c.QueryParam("q"),
		ActiveOnly: true,
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("public: list fields")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list fields"})
	}
	items := make([]fieldResp, 0, len(list))
	for _, f := range list {
		items = append(items, toFieldResp(f.Field))
	}
	return c.JSON(http.StatusOK, pageResp{Items: items, Total: total, Page: page, PageSize: size})
}

// GetField returns one active field.
func (h *PublicHandler) GetField(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	f, err := h.Fields.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrFieldNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "field not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toFieldResp(*f))
}

// GetSchedule handles GET /v1/fields/:id/schedule.
func (h *PublicHandler) GetSchedule(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	return h.schedule(c, id)
}

// LegacySchedule handles GET /v1/schedule?field_id=, kept for clients that
// address the schedule by query parameter.
func (h *PublicHandler) LegacySchedule(c echo.Context) error {
	id, err := strconv.ParseUint(c.QueryParam("field_id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "field_id is required"})
	}
	return h.schedule(c, id)
}

// schedule builds the slot grid for the booking window starting today.
func (h *PublicHandler) schedule(c echo.Context, fieldID uint64) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	f, err := h.Fields.GetActive(ctx, fieldID)
	if err != nil {
		if errors.Is(err, repository.ErrFieldNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "field not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	days := h.WindowDays
	if days <= 0 {
		days = booking.DefaultWindowDays
	}
	now := h.Now.now().In(loc)
	first, last := booking.Window(now, days)

	reservations, err := h.Reservations.ListBlockingInRange(ctx, f.ID, first, last)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Uint64("field_id", f.ID).Msg("public: load reservations")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, scheduleResp{
		Field:    toFieldResp(*f),
		From:     first,
		To:       last,
		Schedule: booking.GenerateSchedule(booking.HoursOf(*f), f.PricePerHour, now, days, reservations),
	})
}
