package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grouptrip/internal/model"
)

// actorKey is the echo context key JWTAuth stores the caller under.
const actorKey = "actor"

// ActorFrom returns the authenticated caller, or the zero Actor on
// public routes.
func ActorFrom(c echo.Context) model.Actor {
	if a, ok := c.Get(actorKey).(model.Actor); ok {
		return a
	}
	return model.Actor{}
}

// userID is the caller's ID, or "anon".
func userID(c echo.Context) string {
	if id := ActorFrom(c).UserID; id != "" {
		return id
	}
	return "anon"
}

func abort(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}
