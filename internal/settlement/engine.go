package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/execution"
	"github.com/congo-pay/flash_settlement/internal/ledger"
	"github.com/congo-pay/flash_settlement/internal/logging"
)

// OperationName is the operation a settlement unit must consist of.
const OperationName = "execute_arbitrage"

// Accounts names the token accounts a settlement touches.
type Accounts struct {
	// Reserve funds the loan and receives the repayment. It must be owned by the
	// engine's program authority.
	Reserve string
	// Destination receives the disbursed loan.
	Destination string
	// Funding is debited for the repayment and the profit payout; owned by the caller.
	Funding string
	// Payout receives the profit.
	Payout string
}

// Request is one invocation of ExecuteArbitrage.
type Request struct {
	LoanAmount uint64
	MinProfit  uint64
	Accounts   Accounts
	Caller     authority.Signer
	Unit       execution.Oracle
}

// Receipt describes how far a settlement got and the amounts involved.
type Receipt struct {
	LoanAmount  uint64
	MinProfit   uint64
	Profit      uint64
	RepayAmount uint64
	States      []State
	Final       State
}

// Engine executes the borrow, profit check, repay cycle inside one ledger unit.
// It holds no state between calls.
type Engine struct {
	ledger   ledger.Ledger
	reserve  *authority.ProgramAuthority
	strategy ProfitStrategy
	logger   *slog.Logger
}

// NewEngine builds an engine that signs reserve disbursements with reserve.
func NewEngine(l ledger.Ledger, reserve *authority.ProgramAuthority, strategy ProfitStrategy, logger *slog.Logger) (*Engine, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if reserve == nil {
		return nil, fmt.Errorf("reserve authority is required")
	}
	if strategy == nil {
		strategy = FixedFraction{Divisor: DefaultProfitDivisor}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{ledger: l, reserve: reserve, strategy: strategy, logger: logger}, nil
}

// ReserveAuthority returns the identity reserve accounts must be owned by.
func (e *Engine) ReserveAuthority() authority.Identity {
	return e.reserve.Identity()
}

// ExecuteArbitrage runs the settlement. On any error no balance movement persists and
// the receipt's final state is StateAborted.
func (e *Engine) ExecuteArbitrage(ctx context.Context, req Request) (Receipt, error) {
	r := &run{receipt: Receipt{
		LoanAmount: req.LoanAmount,
		MinProfit:  req.MinProfit,
		States:     []State{StateStart},
		Final:      StateStart,
	}}

	err := e.ledger.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return e.settle(ctx, tx, req, r)
	})
	if err != nil {
		reached := r.last()
		r.advance(StateAborted)
		e.logger.Debug("settlement aborted",
			slog.Uint64("loan_amount", req.LoanAmount),
			slog.String("reached", string(reached)),
			slog.Any("error", err),
		)
		return r.receipt, err
	}

	r.advance(StateCommitted)
	return r.receipt, nil
}

func (e *Engine) settle(ctx context.Context, tx ledger.Tx, req Request, r *run) error {
	if err := checkAtomicity(req.Unit); err != nil {
		return err
	}
	r.advance(StateAtomicityChecked)

	// Profit and repay amount are fixed before the first transfer; an out-of-range
	// loan never reaches the ledger.
	profit, err := e.strategy.Profit(ctx, req.LoanAmount)
	if err != nil {
		return fmt.Errorf("profit strategy: %w", err)
	}
	repay, ok := checkedAdd(req.LoanAmount, profit)
	if !ok {
		return fmt.Errorf("%w: repay %d + %d", ErrMathOverflow, req.LoanAmount, profit)
	}

	if err := tx.Transfer(ctx, req.Accounts.Reserve, req.Accounts.Destination, e.reserve, req.LoanAmount); err != nil {
		return fmt.Errorf("%w: disbursement: %w", ErrTransferFailure, err)
	}
	r.advance(StateDisbursed)

	r.receipt.Profit = profit
	r.advance(StateProfitComputed)

	if profit < req.MinProfit {
		return fmt.Errorf("%w: profit %d below minimum %d", ErrNotProfitable, profit, req.MinProfit)
	}
	r.advance(StateThresholdPassed)

	r.receipt.RepayAmount = repay
	if err := tx.Transfer(ctx, req.Accounts.Funding, req.Accounts.Reserve, req.Caller, repay); err != nil {
		return fmt.Errorf("%w: repayment: %w", ErrTransferFailure, err)
	}
	r.advance(StateRepaid)

	if err := tx.Transfer(ctx, req.Accounts.Funding, req.Accounts.Payout, req.Caller, profit); err != nil {
		return fmt.Errorf("%w: profit payout: %w", ErrTransferFailure, err)
	}
	r.advance(StateProfitPaid)
	return nil
}

func checkAtomicity(unit execution.Oracle) error {
	if unit == nil {
		return fmt.Errorf("%w: no execution unit", ErrAtomicityViolation)
	}
	if handle := unit.IntrospectionHandle(); handle != authority.CanonicalIntrospection {
		return fmt.Errorf("%w: introspection handle %s is not canonical", ErrAtomicityViolation, handle)
	}
	if !unit.SoleOperation(OperationName) {
		return fmt.Errorf("%w: unit carries operations besides %s", ErrAtomicityViolation, OperationName)
	}
	return nil
}

type run struct {
	receipt Receipt
}

func (r *run) last() State {
	return r.receipt.Final
}

func (r *run) advance(next State) {
	if !r.receipt.Final.CanTransition(next) {
		panic(fmt.Sprintf("settlement: illegal transition %s -> %s", r.receipt.Final, next))
	}
	r.receipt.States = append(r.receipt.States, next)
	r.receipt.Final = next
}
