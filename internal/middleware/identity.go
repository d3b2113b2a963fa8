package middleware

// identity.go defines helpers shared across middleware files.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/field-reservation/internal/utils"
)

// userID returns the caller's user id as a string, or "anon" when the
// request carries no verified identity.  Middleware registered with e.Use
// runs before the group-level JWT middleware, so when the context has no id
// yet the bearer token is verified here with secret.
func userID(c echo.Context, secret string) string {
	if id, ok := c.Get(CtxUserID).(uint64); ok && id > 0 {
		return strconv.FormatUint(id, 10)
	}
	if secret == "" {
		return "anon"
	}
	raw, ok := bearer(c)
	if !ok {
		return "anon"
	}
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil || claims.UserID == 0 {
		return "anon"
	}
	return strconv.FormatUint(claims.UserID, 10)
}
