package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/auth"
)

// RegisterAuthRoutes wires the public authentication endpoints. Logout is protected
// and mounted with the authenticated group.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
}
