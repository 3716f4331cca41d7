package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Handle   string `json:"handle"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type principalResponse struct {
	PrincipalID string `json:"principal_id"`
	Handle      string `json:"handle"`
	DeviceID    string `json:"device_id"`
}

// Register handles principal onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Register(c.UserContext(), Credentials{Handle: req.Handle, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(principalResponse{PrincipalID: p.ID, Handle: p.Handle, DeviceID: p.DeviceID})
}
