// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/grouptrip/internal/config"
	"github.com/iliyamo/grouptrip/internal/handler"
	"github.com/iliyamo/grouptrip/internal/middleware"
)

// Deps is everything the routes need.  Redis may be nil, in which case
// caching and rate limiting are off.
type Deps struct {
	Groups    *handler.GroupHandler
	JWTSecret string
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Logger    zerolog.Logger
}

// New returns an echo instance with the global middleware installed and
// every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Logger))
	Register(e, d)
	return e
}

// Register adds the API routes to e.
//
// Public reads go through the response cache; every successful write
// that can change a group purges it.  Reads and writes draw from
// separate rate-limit buckets.
func Register(e *echo.Echo, d Deps) {
	h := d.Groups
	cache := middleware.NewResponseCache(d.Cache, d.Redis, d.Logger)
	readLimit := middleware.NewTokenBucket(d.RateLimit, d.Redis, "read", d.RateLimit.Capacity, d.Logger)
	writeLimit := middleware.NewTokenBucket(d.RateLimit, d.Redis, "write", d.RateLimit.WriteCapacity, d.Logger)
	auth := middleware.JWTAuth(d.JWTSecret)
	purge := cache.Invalidate()

	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1", middleware.OptionalJWT(d.JWTSecret))
	v1.GET("/attractions", h.ListAttractions, readLimit, cache.Middleware())
	v1.GET("/groups", h.ListOpenGroups, readLimit, cache.Middleware())
	v1.GET("/groups/:id", h.GetGroup, readLimit, cache.Middleware())

	v1.POST("/groups", h.CreateGroup, auth, writeLimit, purge)
	v1.POST("/groups/:id/join", h.JoinGroup, auth, writeLimit, purge)
	v1.GET("/groups/:id/tickets", h.ListGroupTickets, auth, readLimit)
	v1.GET("/groups/:id/tickets/:index/qr.png", h.TicketQR, auth, readLimit)
	v1.POST("/bookings", h.CreateBooking, auth, writeLimit)

	me := e.Group("/v1/me", auth, readLimit)
	me.GET("/bookings", h.ListMyBookings)
	me.GET("/groups", h.ListMyGroups)
	me.GET("/tickets", h.ListMyTickets)

	admin := e.Group("/v1/admin", auth, middleware.RequireStaff())
	admin.GET("/groups/full", h.ListFullGroups, readLimit)
	admin.POST("/groups/:id/send-tickets", h.SendTickets, writeLimit, purge)
	admin.DELETE("/groups", h.ResetAllGroups, writeLimit, purge)
}
