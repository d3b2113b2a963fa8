package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"database/sql"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// HealthHandler reports liveness and, when a database is attached, whether
// it answers a ping.
type HealthHandler struct {
	DB *sql.DB
}

// Health is used by load balancers and monitoring systems to verify that
// the service is running.  It returns plain text "ok" with 200, or 503 when
// the database is unreachable.
func (h *HealthHandler) Health(c echo.Context) error {
	if h != nil && h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, "database unavailable")
		}
	}
	return c.String(http.StatusOK, "ok")
}
