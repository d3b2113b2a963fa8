package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-reservation/internal/handler"
	"github.com/iliyamo/field-reservation/internal/middleware"
	"github.com/iliyamo/field-reservation/internal/model"
)

// RegisterReservations registers booking endpoints.  Creating a booking and
// uploading its payment proof work for guests as well as signed-in users;
// a bearer token, when present, must be valid.  Listing and viewing
// reservations require a signed-in user.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	open := e.Group("/v1", middleware.OptionalJWT(jwtSecret))
	open.POST("/reservations", h.Create)
	open.POST("/reservations/:id/payment-proof", h.UploadPaymentProof)

	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	g.GET("/my-reservations", h.ListMine)
	g.GET("/reservations/:id", h.Get)
}
