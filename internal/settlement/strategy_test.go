package settlement

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestFixedFractionFloors(t *testing.T) {
	s := FixedFraction{Divisor: DefaultProfitDivisor}
	cases := map[uint64]uint64{
		0:              0,
		99:             0,
		100:            1,
		10_000:         100,
		10_099:         100,
		math.MaxUint64: math.MaxUint64 / 100,
	}
	for loan, want := range cases {
		got, err := s.Profit(context.Background(), loan)
		if err != nil {
			t.Fatalf("loan %d: %v", loan, err)
		}
		if got != want {
			t.Fatalf("loan %d: expected %d, got %d", loan, want, got)
		}
	}
}

func TestFixedFractionZeroDivisor(t *testing.T) {
	if _, err := (FixedFraction{}).Profit(context.Background(), 10); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected math overflow, got %v", err)
	}
}

func TestCheckedAdd(t *testing.T) {
	if sum, ok := checkedAdd(1, 2); !ok || sum != 3 {
		t.Fatalf("expected 3, got %d (%v)", sum, ok)
	}
	if _, ok := checkedAdd(math.MaxUint64, 1); ok {
		t.Fatalf("expected overflow")
	}
	if sum, ok := checkedAdd(math.MaxUint64, 0); !ok || sum != math.MaxUint64 {
		t.Fatalf("expected max without overflow")
	}
}
