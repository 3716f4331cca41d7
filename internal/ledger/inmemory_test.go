package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/congo-pay/flash_settlement/internal/authority"
)

func openPair(t *testing.T, l Ledger, owner authority.Identity) {
	t.Helper()
	ctx := context.Background()
	if err := l.OpenAccount(ctx, Account{Code: "acct:a", Owner: owner, Asset: "USDC"}); err != nil {
		t.Fatalf("open account a: %v", err)
	}
	if err := l.OpenAccount(ctx, Account{Code: "acct:b", Owner: owner, Asset: "USDC"}); err != nil {
		t.Fatalf("open account b: %v", err)
	}
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	alice := authority.User("alice")
	openPair(t, l, alice.Identity())

	// seed account a with funds via manual mutation (test helper)
	SeedBalance(l, "acct:a", 10_000)

	err := l.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Transfer(ctx, "acct:a", "acct:b", alice, 1_500)
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	a, _ := l.Balance(ctx, "acct:a")
	b, _ := l.Balance(ctx, "acct:b")
	if a != 8_500 {
		t.Fatalf("expected from balance 8500, got %d", a)
	}
	if b != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", b)
	}
	if a+b != 10_000 {
		t.Fatalf("ledger not balanced, total=%d", a+b)
	}
}

func TestInMemoryLedger_AtomicRollsBackOnError(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	alice := authority.User("alice")
	openPair(t, l, alice.Identity())
	SeedBalance(l, "acct:a", 5_000)

	boom := errors.New("boom")
	err := l.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Transfer(ctx, "acct:a", "acct:b", alice, 2_000); err != nil {
			return err
		}
		staged, err := tx.Balance(ctx, "acct:b")
		if err != nil {
			return err
		}
		if staged != 2_000 {
			return fmt.Errorf("expected staged balance 2000, got %d", staged)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	a, _ := l.Balance(ctx, "acct:a")
	b, _ := l.Balance(ctx, "acct:b")
	if a != 5_000 || b != 0 {
		t.Fatalf("expected balances untouched, got a=%d b=%d", a, b)
	}
}

func TestInMemoryLedger_TransferChecks(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	alice := authority.User("alice")
	mallory := authority.User("mallory")
	openPair(t, l, alice.Identity())
	if err := l.OpenAccount(ctx, Account{Code: "acct:sol", Owner: alice.Identity(), Asset: "SOL"}); err != nil {
		t.Fatalf("open sol account: %v", err)
	}
	SeedBalance(l, "acct:a", 1_000)

	cases := []struct {
		name   string
		from   string
		to     string
		signer authority.Signer
		amount uint64
		want   error
	}{
		{"unauthorized", "acct:a", "acct:b", mallory, 10, ErrUnauthorized},
		{"missing source", "acct:nope", "acct:b", alice, 10, ErrAccountNotFound},
		{"missing destination", "acct:a", "acct:nope", alice, 10, ErrAccountNotFound},
		{"asset mismatch", "acct:a", "acct:sol", alice, 10, ErrAssetMismatch},
		{"insufficient", "acct:a", "acct:b", alice, 1_001, ErrInsufficientFunds},
		{"nil signer", "acct:a", "acct:b", nil, 10, ErrUnauthorized},
	}
	for _, tc := range cases {
		err := l.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Transfer(ctx, tc.from, tc.to, tc.signer, tc.amount)
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if err := l.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Transfer(ctx, "acct:a", "acct:b", alice, 0)
	}); err != nil {
		t.Fatalf("zero transfer should be accepted: %v", err)
	}
	if a, _ := l.Balance(ctx, "acct:a"); a != 1_000 {
		t.Fatalf("expected balance 1000 after zero transfer, got %d", a)
	}
}

func TestInMemoryLedger_CreditOverflow(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	alice := authority.User("alice")
	openPair(t, l, alice.Identity())
	SeedBalance(l, "acct:a", 10)
	SeedBalance(l, "acct:b", math.MaxUint64)

	err := l.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Transfer(ctx, "acct:a", "acct:b", alice, 10)
	})
	if !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestInMemoryLedger_OpenAccountConflict(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	owner := authority.User("alice").Identity()
	acc := Account{Code: "acct:a", Owner: owner, Asset: "USDC"}
	if err := l.OpenAccount(ctx, acc); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.OpenAccount(ctx, acc); err != nil {
		t.Fatalf("reopen identical account should succeed: %v", err)
	}
	acc.Asset = "SOL"
	if err := l.OpenAccount(ctx, acc); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected account exists, got %v", err)
	}
}

func TestInMemoryLedger_IssueIsIdempotent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	openPair(t, l, authority.User("alice").Identity())

	res, err := l.Issue(ctx, "acct:a", "deposit-1", 2_000)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if res.Balance != 2_000 {
		t.Fatalf("expected balance 2000, got %d", res.Balance)
	}

	if _, err := l.Issue(ctx, "acct:a", "deposit-1", 2_000); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate issue error, got %v", err)
	}

	supply, err := l.Supply(ctx, "USDC")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 2_000 {
		t.Fatalf("expected supply 2000, got %d", supply)
	}
}

func TestInMemoryLedger_ConcurrentUnits(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	alice := authority.User("alice")
	openPair(t, l, alice.Identity())
	SeedBalance(l, "acct:a", 100_000)

	const workers = 10
	const amount = uint64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Atomic(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Transfer(ctx, "acct:a", "acct:b", alice, amount)
			})
			if err != nil {
				t.Errorf("unit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := l.Balance(ctx, "acct:a")
	b, _ := l.Balance(ctx, "acct:b")
	if a+b != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", a+b)
	}
	if b != workers*amount {
		t.Fatalf("expected %d credited, got %d", workers*amount, b)
	}
}
