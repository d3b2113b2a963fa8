package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-reservation/internal/handler"
	"github.com/iliyamo/field-reservation/internal/middleware"
	"github.com/iliyamo/field-reservation/internal/model"
)

// AdminHandlers groups the handlers mounted under /v1/admin.
type AdminHandlers struct {
	Fields       *handler.AdminFieldHandler
	Users        *handler.AdminUserHandler
	Reservations *handler.AdminReservationHandler
}

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, h AdminHandlers, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	g.GET("/dashboard", h.Reservations.Dashboard)

	// ---- Fields ----
	g.GET("/fields", h.Fields.List)
	g.POST("/fields", h.Fields.Create)
	g.GET("/fields/:id", h.Fields.Get)
	g.PUT("/fields/:id", h.Fields.Update)
	g.PATCH("/fields/:id", h.Fields.Update)
	g.PATCH("/fields/:id/toggle", h.Fields.Toggle)
	g.DELETE("/fields/:id", h.Fields.Delete)
	g.POST("/fields/:id/image", h.Fields.UploadImage)

	// ---- Users ----
	g.GET("/users", h.Users.List)
	g.GET("/users/:id", h.Users.Get)
	g.PUT("/users/:id", h.Users.Update)
	g.PATCH("/users/:id/toggle", h.Users.Toggle)
	g.DELETE("/users/:id", h.Users.Delete)

	// ---- Reservations ----
	g.GET("/reservations", h.Reservations.List)
	// static segment registered alongside :id; Echo prefers the static match
	g.GET("/reservations/export", h.Reservations.Export)
	g.GET("/reservations/:id", h.Reservations.Get)
	g.PATCH("/reservations/:id/payment", h.Reservations.UpdatePayment)
	g.PATCH("/reservations/:id/notes", h.Reservations.UpdateNotes)
	g.DELETE("/reservations/:id", h.Reservations.Delete)
}
