package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/accounts"
	"github.com/congo-pay/flash_settlement/internal/ledger"
)

// Handler exposes HTTP endpoints for deposits.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit credits one of the principal's token accounts from a card.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	result, err := h.service.Deposit(c.UserContext(), DepositInput{
		OwnerID:     uid,
		AccountCode: c.Params("code"),
		Amount:      req.Amount,
		ClientTxID:  req.ClientTxID,
		CardNumber:  req.CardNumber,
		Expiry:      req.Expiry,
		CVV:         req.CVV,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return c.Status(http.StatusOK).JSON(toResponse(result))
		case errors.Is(err, accounts.ErrNotFound), errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result DepositResult) DepositResponse {
	return DepositResponse{
		TransactionID:     result.TransactionID,
		Status:            result.Status,
		Account:           result.AccountCode,
		Balance:           result.Balance,
		AcquirerReference: result.AcquirerReference,
	}
}
