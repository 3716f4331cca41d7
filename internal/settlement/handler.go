package settlement

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/ledger"
)

// Handler exposes settlement endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a settlement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type executeRequest struct {
	LoanAmount          uint64   `json:"loan_amount"`
	MinProfit           uint64   `json:"min_profit"`
	ReserveAccount      string   `json:"reserve_account"`
	DestinationAccount  string   `json:"destination_account"`
	FundingAccount      string   `json:"funding_account"`
	PayoutAccount       string   `json:"payout_account"`
	IntrospectionHandle string   `json:"introspection_handle"`
	Operations          []string `json:"operations"`
}

type recordResponse struct {
	ID                 string `json:"settlement_id"`
	UnitID             string `json:"unit_id"`
	Outcome            string `json:"outcome"`
	FinalState         string `json:"final_state"`
	LoanAmount         uint64 `json:"loan_amount"`
	MinProfit          uint64 `json:"min_profit"`
	Profit             uint64 `json:"profit"`
	RepayAmount        uint64 `json:"repay_amount"`
	ReserveAccount     string `json:"reserve_account"`
	DestinationAccount string `json:"destination_account"`
	FundingAccount     string `json:"funding_account"`
	PayoutAccount      string `json:"payout_account"`
	ErrorKind          string `json:"error_kind,omitempty"`
	Error              string `json:"error,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// Execute runs ExecuteArbitrage for the authenticated principal.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	handle := authority.Zero
	if req.IntrospectionHandle != "" {
		parsed, err := authority.Parse(req.IntrospectionHandle)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		handle = parsed
	}

	res, err := h.service.Execute(c.UserContext(), ExecuteInput{
		PrincipalID: uid,
		LoanAmount:  req.LoanAmount,
		MinProfit:   req.MinProfit,
		Accounts: Accounts{
			Reserve:     req.ReserveAccount,
			Destination: req.DestinationAccount,
			Funding:     req.FundingAccount,
			Payout:      req.PayoutAccount,
		},
		IntrospectionHandle: handle,
		Operations:          req.Operations,
	})
	if err != nil {
		return c.Status(statusFor(err)).JSON(toResponse(res.Record))
	}

	resp := fiber.Map{"settlement": toResponse(res.Record), "states": res.Receipt.States}
	return c.Status(http.StatusCreated).JSON(resp)
}

// Get returns one of the principal's settlements.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	record, err := h.service.Get(c.UserContext(), c.Params("settlementId"), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "settlement not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(record))
}

// List returns the principal's recent settlements.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	records, err := h.service.List(c.UserContext(), uid, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toResponse(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"settlements": out})
}

// Stats returns aggregate settlement statistics.
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"total":          stats.Total,
		"committed":      stats.Committed,
		"aborted":        stats.Aborted,
		"total_profit":   stats.TotalProfit,
		"average_profit": stats.AverageProfit,
		"success_rate":   stats.SuccessRate,
	})
}

// Context publishes the identities a client needs to build a settlement unit.
func (h *Handler) Context(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"introspection_handle": authority.CanonicalIntrospection.String(),
		"reserve_authority":    h.service.engine.ReserveAuthority().String(),
		"operation":            OperationName,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAtomicityViolation):
		return http.StatusForbidden
	case errors.Is(err, ErrMathOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotProfitable):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransferFailure):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(r Record) recordResponse {
	return recordResponse{
		ID:                 r.ID,
		UnitID:             r.UnitID,
		Outcome:            r.Outcome,
		FinalState:         string(r.FinalState),
		LoanAmount:         r.LoanAmount,
		MinProfit:          r.MinProfit,
		Profit:             r.Profit,
		RepayAmount:        r.RepayAmount,
		ReserveAccount:     r.Accounts.Reserve,
		DestinationAccount: r.Accounts.Destination,
		FundingAccount:     r.Accounts.Funding,
		PayoutAccount:      r.Accounts.Payout,
		ErrorKind:          r.ErrorKind,
		Error:              r.ErrorMessage,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339Nano),
	}
}
