package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/identity"
)

// RegisterIdentityRoutes wires principal onboarding.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}

// RegisterProfileRoute exposes the authenticated principal's profile.
func RegisterProfileRoute(r fiber.Router, repo identity.Repository) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		p, err := repo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "principal not found")
		}
		resp := fiber.Map{
			"principal_id":  p.ID,
			"handle":        p.Handle,
			"device_id":     p.DeviceID,
			"token_version": p.TokenVersion,
			"created_at":    p.CreatedAt.Format(time.RFC3339Nano),
		}
		if p.LastLogin != nil {
			resp["last_login"] = p.LastLogin.Format(time.RFC3339Nano)
		}
		return c.JSON(resp)
	})
}
