package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// AdminKey is the context key marking a request as admin-authenticated
const AdminKey ContextKey = "is_admin"

// CheckAdmin marks requests carrying the admin bearer token so handlers can
// include draft reports. It never rejects; use RequireAdmin for that.
func CheckAdmin(adminToken string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if adminToken != "" && bearerToken(c) == adminToken {
				c.Set(string(AdminKey), true)
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects requests that do not carry the admin bearer token.
// With no token configured, all mutating routes are rejected.
func RequireAdmin(adminToken string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if adminToken == "" || subtle.ConstantTimeCompare([]byte(bearerToken(c)), []byte(adminToken)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "admin token required",
				})
			}
			c.Set(string(AdminKey), true)
			return next(c)
		}
	}
}

// IsAdmin reports whether the request was admin-authenticated
func IsAdmin(c echo.Context) bool {
	admin, _ := c.Get(string(AdminKey)).(bool)
	return admin
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}
