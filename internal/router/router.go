package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/field-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/field-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/field-reservation/internal/model"
)

// RegisterRoutes registers operational routes that do not require
// authentication: the health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers all authentication-related routes.  Unauthenticated
// operations live under /v1/auth, while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts either a refresh token in the body or a bearer token.
	g.POST("/logout", a.Logout, middleware.OptionalJWT(jwtSecret))

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	auth.GET("/me", a.Me)
	auth.POST("/users/change-password", a.ChangePassword)
}

// RegisterPublic registers unauthenticated browse endpoints.  The field
// catalogue goes through the response cache; schedules are always live.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/fields", p.ListFields, cache)
	e.GET("/v1/fields/:id", p.GetField, cache)
	e.GET("/v1/fields/:id/schedule", p.GetSchedule)
	e.GET("/v1/schedule", p.LegacySchedule)
}

// RegisterUploads serves stored images under /uploads.
func RegisterUploads(e *echo.Echo, dir string) {
	e.Static("/uploads", dir)
}
