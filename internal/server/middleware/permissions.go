package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return slices.Contains(user.Permissions, permission)
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return unauthorized(c)
			}

			if !HasPermission(user, permission) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":  "forbidden",
					"detail": "missing permission " + permission,
				})
			}

			return next(c)
		}
	}
}
