package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/settlement"
)

// RegisterSettlementRoutes wires the settlement endpoints. Static paths are
// registered before the :settlementId parameter route.
func RegisterSettlementRoutes(r fiber.Router, h *settlement.Handler, limiter, idem fiber.Handler) {
	group := r.Group("/settlements")
	group.Get("/context", h.Context)
	group.Get("/stats", h.Stats)
	group.Get("/", h.List)
	group.Post("/", limiter, idem, h.Execute)
	group.Get("/:settlementId", h.Get)
}
