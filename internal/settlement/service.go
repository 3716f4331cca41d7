package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/execution"
	"github.com/congo-pay/flash_settlement/internal/logging"
	"github.com/congo-pay/flash_settlement/internal/metrics"
	"github.com/congo-pay/flash_settlement/internal/notification"
)

// Service runs settlements on behalf of authenticated principals and journals every attempt.
type Service struct {
	engine   *Engine
	journal  Repository
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a settlement service.
func NewService(engine *Engine, journal Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{engine: engine, journal: journal, notifier: notifier, logger: logger}
}

// ExecuteInput captures one settlement submission.
type ExecuteInput struct {
	PrincipalID         string
	LoanAmount          uint64
	MinProfit           uint64
	Accounts            Accounts
	IntrospectionHandle authority.Identity
	// Operations lists every operation submitted in the same unit. Empty means the
	// settlement was submitted alone.
	Operations []string
}

// Result pairs the engine receipt with its journal record.
type Result struct {
	Record  Record
	Receipt Receipt
}

// Execute runs one settlement unit. The returned error is the engine's; journal
// failures are logged and do not change the outcome.
func (s *Service) Execute(ctx context.Context, input ExecuteInput) (Result, error) {
	ops := input.Operations
	if len(ops) == 0 {
		ops = []string{OperationName}
	}
	unit := execution.NewUnit(input.IntrospectionHandle, ops...)

	start := time.Now()
	receipt, execErr := s.engine.ExecuteArbitrage(ctx, Request{
		LoanAmount: input.LoanAmount,
		MinProfit:  input.MinProfit,
		Accounts:   input.Accounts,
		Caller:     authority.User(input.PrincipalID),
		Unit:       unit,
	})
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	metrics.LoanAmount.Observe(float64(input.LoanAmount))

	record := Record{
		ID:          uuid.NewString(),
		PrincipalID: input.PrincipalID,
		UnitID:      unit.ID,
		Accounts:    input.Accounts,
		LoanAmount:  input.LoanAmount,
		MinProfit:   input.MinProfit,
		Profit:      receipt.Profit,
		RepayAmount: receipt.RepayAmount,
		Outcome:     OutcomeCommitted,
		FinalState:  receipt.Final,
		CreatedAt:   time.Now().UTC(),
	}
	if execErr != nil {
		record.Outcome = OutcomeAborted
		record.ErrorKind = Kind(execErr)
		record.ErrorMessage = execErr.Error()
	}
	metrics.Settlements.WithLabelValues(record.Outcome, record.ErrorKind).Inc()

	attrs := []any{
		slog.String("settlement_id", record.ID),
		slog.String("unit_id", record.UnitID),
		slog.String("principal_id", record.PrincipalID),
		slog.String("outcome", record.Outcome),
		slog.Uint64("loan_amount", record.LoanAmount),
		slog.Uint64("profit", record.Profit),
	}
	if execErr != nil {
		attrs = append(attrs, slog.String("kind", record.ErrorKind), slog.Any("error", execErr))
		s.logger.Warn("settlement aborted", attrs...)
	} else {
		metrics.SettlementProfit.Add(float64(record.Profit))
		s.logger.Info("settlement committed", attrs...)
	}

	if s.journal != nil {
		if err := s.journal.Create(ctx, record); err != nil {
			s.logger.Error("journal settlement", slog.String("settlement_id", record.ID), slog.Any("error", err))
		}
	}

	if execErr == nil && s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindSettlementCommitted,
			Destination: input.PrincipalID,
			Body:        fmt.Sprintf("Settlement %s repaid %d and paid %d profit to %s", record.ID, record.RepayAmount, record.Profit, input.Accounts.Payout),
		})
	}

	return Result{Record: record, Receipt: receipt}, execErr
}

// Get returns a settlement record owned by principalID.
func (s *Service) Get(ctx context.Context, id, principalID string) (Record, error) {
	record, err := s.journal.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if principalID != "" && record.PrincipalID != principalID {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// List returns the principal's recent settlements.
func (s *Service) List(ctx context.Context, principalID string, limit int) ([]Record, error) {
	return s.journal.ListByPrincipal(ctx, principalID, limit)
}

// Stats summarizes the journal.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.journal.Stats(ctx)
}
