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
)

// AdminUserHandler lets administrators manage accounts.
type AdminUserHandler struct {
	Users *repository.UserRepo
}

type updateUserReq struct {
	Name  string  `json:"name" validate:"required,max=100"`
	Email string  `json:"email" validate:"required,email,max=191"`
	Phone *string `json:"phone" validate:"omitempty,max=30"`
	Role  string  `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

func userError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "user has reservations and cannot be deleted"})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("admin user")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}

// List handles GET /v1/admin/users with ?q= and pagination.
func (h *AdminUserHandler) List(c echo.Context) error {
	page, size := pageParams(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	list, total, err := h.Users.List(ctx, repository.UserQuery{Search: c.QueryParam("q"), Page: page, PageSize: size})
	if err != nil {
		return userError(c, err)
	}
	items := make([]userResp, 0, len(list))
	for _, u := range list {
		r := toUserResp(u.User)
		n := u.ReservationCount
		r.ReservationCount = &n
		items = append(items, r)
	}
	return c.JSON(http.StatusOK, pageResp{Items: items, Total: total, Page: page, PageSize: size})
}

// Get handles GET /v1/admin/users/:id.
func (h *AdminUserHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userError(c, err)
	}
	n, err := h.Users.CountReservations(ctx, id)
	if err != nil {
		return userError(c, err)
	}
	r := toUserResp(*u)
	r.ReservationCount = &n
	return c.JSON(http.StatusOK, r)
}

// Update handles PUT /v1/admin/users/:id.  Administrators cannot demote
// themselves.
func (h *AdminUserHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req updateUserReq
	if msg, ok := bindValid(c, &req); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	cur, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userError(c, err)
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = cur.Role
	}
	if self, _ := getUserID(c); self == id && role != model.RoleAdmin {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot change your own role"})
	}
	u, err := h.Users.Update(ctx, id, repository.UserUpdate{
		Name:  strings.TrimSpace(req.Name),
		Email: req.Email,
		Phone: trimmedPtr(req.Phone),
		Role:  role,
	})
	if err != nil {
		return userError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(*u))
}

// Toggle handles PATCH /v1/admin/users/:id/toggle and flips is_active.
func (h *AdminUserHandler) Toggle(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if self, _ := getUserID(c); self == id {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot deactivate your own account"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return userError(c, err)
	}
	if err := h.Users.SetActive(ctx, id, !u.IsActive); err != nil {
		return userError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_active": !u.IsActive})
}

// Delete handles DELETE /v1/admin/users/:id.  Users with reservations are
// kept and the request fails with 409.
func (h *AdminUserHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if self, _ := getUserID(c); self == id {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot delete your own account"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return userError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
