package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grouptrip/internal/utils"
)

// JWTAuth validates the HS256 bearer token issued by the identity
// provider and stores the resulting model.Actor in the context.
// Requests without a valid token are answered with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return abort(c, http.StatusUnauthorized, "auth_error", "missing bearer token")
			}
			actor, err := utils.ParseActorToken(key, raw)
			if err != nil {
				return abort(c, http.StatusUnauthorized, "auth_error", "invalid token")
			}
			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

// OptionalJWT is JWTAuth for public routes: a valid token identifies
// the caller, a missing or broken one is ignored.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearer(c); ok {
				if actor, err := utils.ParseActorToken(key, raw); err == nil {
					c.Set(actorKey, actor)
				}
			}
			return next(c)
		}
	}
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}
