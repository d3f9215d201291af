package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireStaff lets only staff actors through.  It must run after
// JWTAuth; an anonymous request gets 401, a non-staff one 403.
func RequireStaff() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := ActorFrom(c)
			if !a.Authenticated() {
				return abort(c, http.StatusUnauthorized, "auth_error", "authentication required")
			}
			if !a.Staff {
				return abort(c, http.StatusForbidden, "forbidden", "staff capability required")
			}
			return next(c)
		}
	}
}
