package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/accounts"
)

// RegisterAccountRoutes wires token account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler) {
	r.Post("/accounts", h.Open)
	r.Get("/accounts", h.List)
	r.Get("/accounts/:code/balance", h.Balance)
}
