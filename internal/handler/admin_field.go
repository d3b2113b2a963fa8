package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/storage"
)

// AdminFieldHandler lets administrators manage the field catalogue.
// Every mutation purges the public response cache.
type AdminFieldHandler struct {
	Fields *repository.FieldRepo
	Store  *storage.LocalStore
	Cache  CachePurger
}

// fieldReq is the body of create and update.  Hours default to 08-22.
type fieldReq struct {
	Name         string   `json:"name" validate:"required,max=100"`
	Description  *string  `json:"description" validate:"omitempty,max=2000"`
	Location     string   `json:"location" validate:"required,max=255"`
	PricePerHour int64    `json:"price_per_hour" validate:"required,gt=0"`
	Facilities   []string `json:"facilities" validate:"omitempty,max=30,dive,max=50"`
	OpenHour     *int     `json:"open_hour" validate:"omitempty,gte=0,lte=23"`
	CloseHour    *int     `json:"close_hour" validate:"omitempty,gte=1,lte=24"`
	IsActive     *bool    `json:"is_active"`
}

// apply copies the request onto f and checks the operating hours.
func (r fieldReq) apply(f *model.Field) string {
	f.Name = strings.TrimSpace(r.Name)
	f.Description = trimmedPtr(r.Description)
	f.Location = strings.TrimSpace(r.Location)
	f.PricePerHour = r.PricePerHour
	f.Facilities = r.Facilities
	if r.OpenHour != nil {
		f.OpenHour = *r.OpenHour
	}
	if r.CloseHour != nil {
		f.CloseHour = *r.CloseHour
	}
	if r.IsActive != nil {
		f.IsActive = *r.IsActive
	}
	if f.OpenHour >= f.CloseHour {
		return "open_hour must be before close_hour"
	}
	return ""
}

func (h *AdminFieldHandler) purge(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Purge(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("purge response cache")
	}
}

func fieldError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrFieldNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "field not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "field has reservations and cannot be deleted"})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("admin field")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}

// List handles GET /v1/admin/fields with ?q=, ?status=active|inactive and pagination.
func (h *AdminFieldHandler) List(c echo.Context) error {
	page, size := pageParams(c)
	status := strings.ToLower(c.QueryParam("status"))
	if status != "" && status != "active" && status != "inactive" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be active or inactive"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, total, err := h.Fields.List(ctx, repository.FieldQuery{
		Search: c.QueryParam("q"), Status: status, Page: page, PageSize: size,
	})
	if err != nil {
		return fieldError(c, err)
	}
	items := make([]fieldResp, 0, len(list))
	for _, f := range list {
		r := toFieldResp(f.Field)
		n := f.ReservationCount
		r.ReservationCount = &n
		items = append(items, r)
	}
	return c.JSON(http.StatusOK, pageResp{Items: items, Total: total, Page: page, PageSize: size})
}

// Get handles GET /v1/admin/fields/:id, including inactive fields.
func (h *AdminFieldHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	f, err := h.Fields.GetByID(ctx, id)
	if err != nil {
		return fieldError(c, err)
	}
	return c.JSON(http.StatusOK, toFieldResp(*f))
}

// Create handles POST /v1/admin/fields.
func (h *AdminFieldHandler) Create(c echo.Context) error {
	var req fieldReq
	if msg, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	f := &model.Field{OpenHour: model.DefaultOpenHour, CloseHour: model.DefaultCloseHour, IsActive: true}
	if msg := req.apply(f); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Fields.Create(ctx, f); err != nil {
		return fieldError(c, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusCreated, toFieldResp(*f))
}

// Update handles PUT /v1/admin/fields/:id.  Omitted hours and active flag
// keep their stored values.
func (h *AdminFieldHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	var req fieldReq
	if msg, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	f, err := h.Fields.GetByID(ctx, id)
	if err != nil {
		return fieldError(c, err)
	}
	if msg := req.apply(f); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if err := h.Fields.Update(ctx, f); err != nil {
		return fieldError(c, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, toFieldResp(*f))
}

// Toggle handles PATCH /v1/admin/fields/:id/toggle and flips is_active.
func (h *AdminFieldHandler) Toggle(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	f, err := h.Fields.GetByID(ctx, id)
	if err != nil {
		return fieldError(c, err)
	}
	if err := h.Fields.SetActive(ctx, id, !f.IsActive); err != nil {
		return fieldError(c, err)
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_active": !f.IsActive})
}

// Delete handles DELETE /v1/admin/fields/:id.  Fields referenced by any
// reservation are kept and the request fails with 409.
func (h *AdminFieldHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	f, err := h.Fields.GetByID(ctx, id)
	if err != nil {
		return fieldError(c, err)
	}
	if err := h.Fields.Delete(ctx, id); err != nil {
		return fieldError(c, err)
	}
	if f.ImageURL != nil && h.Store != nil {
		_ = h.Store.Remove(*f.ImageURL)
	}
	h.purge(ctx)
	return c.NoContent(http.StatusNoContent)
}

// UploadImage handles POST /v1/admin/fields/:id/image (multipart "image").
func (h *AdminFieldHandler) UploadImage(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid field id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*dbTimeout)
	defer cancel()

	f, err := h.Fields.GetByID(ctx, id)
	if err != nil {
		return fieldError(c, err)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "image file is required"})
	}
	url, err := h.Store.SaveImage(fh, "fields", "field")
	if err != nil {
		if errors.Is(err, storage.ErrEmptyFile) || errors.Is(err, storage.ErrNotImage) || errors.Is(err, storage.ErrTooLarge) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("save field image")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store file"})
	}
	if err := h.Fields.SetImage(ctx, id, url); err != nil {
		_ = h.Store.Remove(url)
		return fieldError(c, err)
	}
	if f.ImageURL != nil && *f.ImageURL != url {
		_ = h.Store.Remove(*f.ImageURL)
	}
	h.purge(ctx)
	f.ImageURL = &url
	return c.JSON(http.StatusOK, toFieldResp(*f))
}
