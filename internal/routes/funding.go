package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/funding"
)

// RegisterFundingRoutes wires deposit endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idem fiber.Handler) {
	r.Post("/accounts/:code/deposits", idem, h.Deposit)
}
