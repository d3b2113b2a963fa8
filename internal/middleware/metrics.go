package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-reservation/internal/metrics"
)

// Metrics records request count and latency per matched route.  Unmatched
// paths are folded into one label so scanners cannot explode cardinality.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveHTTP(route, c.Request().Method, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
