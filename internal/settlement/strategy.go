package settlement

import (
	"context"
	"fmt"
)

// DefaultProfitDivisor yields a 1% profit on the loan.
const DefaultProfitDivisor = 100

// ProfitStrategy reports the profit realized by putting loanAmount to work.
//
// The engine trusts the figure: it enforces only that the result covers the caller's
// minimum and that repayment arithmetic stays in range. It never verifies that the
// profit was actually earned.
type ProfitStrategy interface {
	Profit(ctx context.Context, loanAmount uint64) (uint64, error)
}

// StrategyFunc adapts a function to ProfitStrategy.
type StrategyFunc func(ctx context.Context, loanAmount uint64) (uint64, error)

// Profit calls f.
func (f StrategyFunc) Profit(ctx context.Context, loanAmount uint64) (uint64, error) {
	return f(ctx, loanAmount)
}

// FixedFraction models profit as floor(loanAmount / Divisor).
type FixedFraction struct {
	Divisor uint64
}

// Profit divides with a zero-divisor check.
func (f FixedFraction) Profit(_ context.Context, loanAmount uint64) (uint64, error) {
	q, ok := checkedDiv(loanAmount, f.Divisor)
	if !ok {
		return 0, fmt.Errorf("%w: divide %d by %d", ErrMathOverflow, loanAmount, f.Divisor)
	}
	return q, nil
}

func checkedDiv(a, b uint64) (uint64, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
