package settlement

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/execution"
	"github.com/congo-pay/flash_settlement/internal/ledger"
)

const (
	reserveCode     = "reserve:USDC"
	destinationCode = "acct:destination"
	fundingCode     = "acct:funding"
	payoutCode      = "acct:payout"
)

// countingLedger records how many transfers were attempted inside units.
type countingLedger struct {
	ledger.Ledger
	transfers int
}

func (l *countingLedger) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return l.Ledger.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, &countingTx{Tx: tx, parent: l})
	})
}

type countingTx struct {
	ledger.Tx
	parent *countingLedger
}

func (t *countingTx) Transfer(ctx context.Context, from, to string, signer authority.Signer, amount uint64) error {
	t.parent.transfers++
	return t.Tx.Transfer(ctx, from, to, signer, amount)
}

type fixture struct {
	ledger  *countingLedger
	engine  *Engine
	program *authority.ProgramAuthority
	caller  authority.UserSigner
}

func newFixture(t *testing.T, reserveBalance, fundingBalance uint64) *fixture {
	t.Helper()
	ctx := context.Background()
	led := &countingLedger{Ledger: ledger.NewInMemory()}
	program := authority.NewProgramAuthority("test-program", "flash_loan")
	caller := authority.User(uuid.NewString())

	accounts := []ledger.Account{
		{Code: reserveCode, Owner: program.Identity(), Asset: "USDC"},
		{Code: destinationCode, Owner: caller.Identity(), Asset: "USDC"},
		{Code: fundingCode, Owner: caller.Identity(), Asset: "USDC"},
		{Code: payoutCode, Owner: caller.Identity(), Asset: "USDC"},
	}
	for _, acc := range accounts {
		if err := led.OpenAccount(ctx, acc); err != nil {
			t.Fatalf("open %s: %v", acc.Code, err)
		}
	}
	ledger.SeedBalance(led.Ledger, reserveCode, reserveBalance)
	ledger.SeedBalance(led.Ledger, fundingCode, fundingBalance)

	engine, err := NewEngine(led, program, FixedFraction{Divisor: DefaultProfitDivisor}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{ledger: led, engine: engine, program: program, caller: caller}
}

func (f *fixture) request(loan, minProfit uint64) Request {
	return Request{
		LoanAmount: loan,
		MinProfit:  minProfit,
		Accounts: Accounts{
			Reserve:     reserveCode,
			Destination: destinationCode,
			Funding:     fundingCode,
			Payout:      payoutCode,
		},
		Caller: f.caller,
		Unit:   execution.NewUnit(authority.CanonicalIntrospection, OperationName),
	}
}

func (f *fixture) balances(t *testing.T) map[string]uint64 {
	t.Helper()
	out := make(map[string]uint64)
	for _, code := range []string{reserveCode, destinationCode, fundingCode, payoutCode} {
		bal, err := f.ledger.Balance(context.Background(), code)
		if err != nil {
			t.Fatalf("balance %s: %v", code, err)
		}
		out[code] = bal
	}
	return out
}

func TestExecuteArbitrageCommits(t *testing.T) {
	f := newFixture(t, 1_000_000, 20_000)

	receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(10_000, 50))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if receipt.Profit != 100 {
		t.Fatalf("expected profit 100, got %d", receipt.Profit)
	}
	if receipt.RepayAmount != 10_100 {
		t.Fatalf("expected repay 10100, got %d", receipt.RepayAmount)
	}
	wantStates := []State{
		StateStart, StateAtomicityChecked, StateDisbursed, StateProfitComputed,
		StateThresholdPassed, StateRepaid, StateProfitPaid, StateCommitted,
	}
	if !reflect.DeepEqual(receipt.States, wantStates) {
		t.Fatalf("unexpected states %v", receipt.States)
	}

	got := f.balances(t)
	want := map[string]uint64{
		reserveCode:     1_000_100, // principal returned plus profit
		destinationCode: 10_000,
		fundingCode:     20_000 - 10_100 - 100,
		payoutCode:      100,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected balances %v, got %v", want, got)
	}
}

func TestExecuteArbitrageNotProfitableRollsBack(t *testing.T) {
	f := newFixture(t, 1_000_000, 20_000)
	before := f.balances(t)

	receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(10_000, 200))
	if !errors.Is(err, ErrNotProfitable) {
		t.Fatalf("expected not profitable, got %v", err)
	}
	if Kind(err) != KindNotProfitable {
		t.Fatalf("expected kind %s, got %s", KindNotProfitable, Kind(err))
	}
	if receipt.Final != StateAborted {
		t.Fatalf("expected aborted, got %s", receipt.Final)
	}
	if f.ledger.transfers != 1 {
		t.Fatalf("expected only the disbursement to be attempted, got %d transfers", f.ledger.transfers)
	}

	if after := f.balances(t); !reflect.DeepEqual(before, after) {
		t.Fatalf("balances changed: before %v after %v", before, after)
	}
}

func TestExecuteArbitrageZeroLoan(t *testing.T) {
	f := newFixture(t, 1_000_000, 20_000)
	before := f.balances(t)

	receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(0, 0))
	if err != nil {
		t.Fatalf("zero loan with zero minimum should commit: %v", err)
	}
	if receipt.Final != StateCommitted || receipt.Profit != 0 || receipt.RepayAmount != 0 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if after := f.balances(t); !reflect.DeepEqual(before, after) {
		t.Fatalf("zero loan moved balances: before %v after %v", before, after)
	}

	if _, err := f.engine.ExecuteArbitrage(context.Background(), f.request(0, 1)); !errors.Is(err, ErrNotProfitable) {
		t.Fatalf("expected not profitable, got %v", err)
	}
}

func TestExecuteArbitrageOverflowBeforeAnyTransfer(t *testing.T) {
	loans := []uint64{
		math.MaxUint64,
		math.MaxUint64 - 1,
		math.MaxUint64/101*100 + 100,
	}
	for _, loan := range loans {
		f := newFixture(t, 1_000_000, 20_000)
		before := f.balances(t)

		receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(loan, 0))
		if !errors.Is(err, ErrMathOverflow) {
			t.Fatalf("loan %d: expected math overflow, got %v", loan, err)
		}
		if f.ledger.transfers != 0 {
			t.Fatalf("loan %d: expected no transfer attempts, got %d", loan, f.ledger.transfers)
		}
		if receipt.Final != StateAborted {
			t.Fatalf("loan %d: expected aborted, got %s", loan, receipt.Final)
		}
		if after := f.balances(t); !reflect.DeepEqual(before, after) {
			t.Fatalf("loan %d: balances changed", loan)
		}
	}
}

func TestExecuteArbitrageAtomicityViolation(t *testing.T) {
	f := newFixture(t, 1_000_000, 20_000)
	forged := authority.Derive("attacker", "instructions")

	units := map[string]execution.Oracle{
		"forged handle":  execution.NewUnit(forged, OperationName),
		"co-resident op": execution.NewUnit(authority.CanonicalIntrospection, OperationName, "transfer"),
		"missing unit":   nil,
	}
	for name, unit := range units {
		req := f.request(10_000, 0)
		req.Unit = unit
		receipt, err := f.engine.ExecuteArbitrage(context.Background(), req)
		if !errors.Is(err, ErrAtomicityViolation) {
			t.Fatalf("%s: expected atomicity violation, got %v", name, err)
		}
		if !reflect.DeepEqual(receipt.States, []State{StateStart, StateAborted}) {
			t.Fatalf("%s: unexpected states %v", name, receipt.States)
		}
	}
	if f.ledger.transfers != 0 {
		t.Fatalf("expected no transfer attempts, got %d", f.ledger.transfers)
	}
}

func TestExecuteArbitrageTransferFailures(t *testing.T) {
	t.Run("reserve short", func(t *testing.T) {
		f := newFixture(t, 5_000, 20_000)
		_, err := f.engine.ExecuteArbitrage(context.Background(), f.request(10_000, 0))
		if !errors.Is(err, ErrTransferFailure) || !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Fatalf("expected transfer failure for insufficient reserve, got %v", err)
		}
	})

	t.Run("funding short", func(t *testing.T) {
		f := newFixture(t, 1_000_000, 10_000)
		before := f.balances(t)
		receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(10_000, 0))
		if !errors.Is(err, ErrTransferFailure) || !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Fatalf("expected transfer failure at repayment, got %v", err)
		}
		if receipt.States[len(receipt.States)-2] != StateThresholdPassed {
			t.Fatalf("expected abort after threshold, got %v", receipt.States)
		}
		if after := f.balances(t); !reflect.DeepEqual(before, after) {
			t.Fatalf("disbursement leaked: before %v after %v", before, after)
		}
	})

	t.Run("payout short", func(t *testing.T) {
		// funding covers the repayment but not the extra profit payout
		f := newFixture(t, 1_000_000, 10_100)
		before := f.balances(t)
		receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(10_000, 0))
		if !errors.Is(err, ErrTransferFailure) {
			t.Fatalf("expected transfer failure at payout, got %v", err)
		}
		if receipt.States[len(receipt.States)-2] != StateRepaid {
			t.Fatalf("expected abort after repayment, got %v", receipt.States)
		}
		if after := f.balances(t); !reflect.DeepEqual(before, after) {
			t.Fatalf("partial settlement persisted: before %v after %v", before, after)
		}
	})

	t.Run("wrong caller", func(t *testing.T) {
		f := newFixture(t, 1_000_000, 20_000)
		req := f.request(10_000, 0)
		req.Caller = authority.User(uuid.NewString())
		_, err := f.engine.ExecuteArbitrage(context.Background(), req)
		if !errors.Is(err, ErrTransferFailure) || !errors.Is(err, ledger.ErrUnauthorized) {
			t.Fatalf("expected unauthorized repayment, got %v", err)
		}
	})

	t.Run("reserve not program owned", func(t *testing.T) {
		f := newFixture(t, 1_000_000, 20_000)
		req := f.request(10_000, 0)
		req.Accounts.Reserve = fundingCode
		_, err := f.engine.ExecuteArbitrage(context.Background(), req)
		if !errors.Is(err, ErrTransferFailure) || !errors.Is(err, ledger.ErrUnauthorized) {
			t.Fatalf("expected unauthorized disbursement, got %v", err)
		}
	})
}

func TestExecuteArbitrageReserveNeverLosesPrincipal(t *testing.T) {
	loans := []uint64{1, 99, 100, 101, 1_234, 10_000, 99_999, 500_000}
	for _, loan := range loans {
		f := newFixture(t, 1_000_000, 2_000_000)
		before := f.balances(t)

		receipt, err := f.engine.ExecuteArbitrage(context.Background(), f.request(loan, 0))
		if err != nil {
			t.Fatalf("loan %d: %v", loan, err)
		}
		profit := loan / 100
		if receipt.RepayAmount != loan+profit {
			t.Fatalf("loan %d: expected repay %d, got %d", loan, loan+profit, receipt.RepayAmount)
		}

		after := f.balances(t)
		if after[reserveCode] != before[reserveCode]+profit {
			t.Fatalf("loan %d: reserve moved from %d to %d", loan, before[reserveCode], after[reserveCode])
		}
		if after[fundingCode] != before[fundingCode]-loan-2*profit {
			t.Fatalf("loan %d: unexpected funding balance %d", loan, after[fundingCode])
		}
	}
}

func TestExecuteArbitrageStrategyErrors(t *testing.T) {
	f := newFixture(t, 1_000_000, 20_000)

	zero, err := NewEngine(f.ledger, f.program, FixedFraction{}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := zero.ExecuteArbitrage(context.Background(), f.request(10_000, 0)); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected math overflow for zero divisor, got %v", err)
	}

	boom := errors.New("oracle offline")
	failing, err := NewEngine(f.ledger, f.program, StrategyFunc(func(context.Context, uint64) (uint64, error) {
		return 0, boom
	}), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = failing.ExecuteArbitrage(context.Background(), f.request(10_000, 0))
	if !errors.Is(err, boom) || Kind(err) != KindInternal {
		t.Fatalf("expected strategy error passed through, got %v (%s)", err, Kind(err))
	}
	if f.ledger.transfers != 0 {
		t.Fatalf("expected no transfers, got %d", f.ledger.transfers)
	}
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	program := authority.NewProgramAuthority("p", "flash_loan")
	if _, err := NewEngine(nil, program, nil, nil); err == nil {
		t.Fatalf("expected error without ledger")
	}
	if _, err := NewEngine(ledger.NewInMemory(), nil, nil, nil); err == nil {
		t.Fatalf("expected error without reserve authority")
	}
}
