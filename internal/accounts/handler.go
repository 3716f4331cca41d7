package accounts

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes token account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a token account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	Asset string `json:"asset"`
}

type accountResponse struct {
	Code      string `json:"code"`
	OwnerID   string `json:"owner_id"`
	Asset     string `json:"asset"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Open provisions a token account for the authenticated principal.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	a, err := h.service.Open(c.UserContext(), uid, req.Asset)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(a))
}

// List returns the authenticated principal's token accounts.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	owned, err := h.service.ListByOwner(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]accountResponse, 0, len(owned))
	for _, a := range owned {
		out = append(out, toResponse(a))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out})
}

// Balance returns the balance of one of the principal's token accounts.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	b, err := h.service.Balance(c.UserContext(), c.Params("code"), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"code":      b.Code,
		"asset":     b.Asset,
		"balance":   b.Amount,
		"timestamp": b.AsOf.Format(time.RFC3339Nano),
	})
}

func toResponse(a TokenAccount) accountResponse {
	return accountResponse{
		Code:      a.Code,
		OwnerID:   a.OwnerID,
		Asset:     a.Asset,
		Status:    a.Status,
		CreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
	}
}
