// Package router registers the HTTP routes of the booking API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitbook/internal/config"
	"github.com/iliyamo/fitbook/internal/handler"
	"github.com/iliyamo/fitbook/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterBookings registers the booking API under /v1. Every route needs
// a valid access token; mutations are rate limited per user and route.
// rdb may be nil, which disables rate limiting and caching.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, rdb *redis.Client) {
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	e.GET("/v1/booking-policies", h.Policies, cache)

	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleClient, middleware.RoleCoach, middleware.RoleGym),
	)
	clientOnly := middleware.RequireRole(middleware.RoleClient)
	providerOnly := middleware.RequireRole(middleware.RoleCoach, middleware.RoleGym)

	g.GET("/bookings", h.List)
	g.GET("/bookings/:id", h.Get)
	g.GET("/bookings/:id/proposals", h.Proposals)
	g.GET("/bookings/:id/history", h.History)
	g.GET("/bookings/:id/reminders", h.Reminders)

	g.POST("/bookings", h.Create, clientOnly, limit)
	g.POST("/bookings/:id/submit", h.Submit, clientOnly, limit)
	g.POST("/bookings/:id/accept", h.Accept, limit)
	g.POST("/bookings/:id/reject", h.Reject, limit)
	g.POST("/bookings/:id/cancel", h.Cancel, limit)
	g.POST("/bookings/:id/attendance", h.Attendance, providerOnly, limit)
	g.POST("/bookings/:id/proposals", h.Propose, limit)
	g.POST("/proposals/:id/respond", h.Respond, limit)

	g.PUT("/bookings/:id/payment-method", h.PaymentMethod, clientOnly, limit)
	g.POST("/bookings/:id/payments/card", h.PayByCard, clientOnly, limit)
	g.POST("/bookings/:id/payments/venue", h.ConfirmVenuePayment, providerOnly, limit)
}
