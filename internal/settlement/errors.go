package settlement

import "errors"

var (
	// ErrAtomicityViolation indicates the execution unit did not prove the settlement
	// is the only operation in it.
	ErrAtomicityViolation = errors.New("atomicity violation")

	// ErrMathOverflow indicates an arithmetic step would leave the uint64 range.
	ErrMathOverflow = errors.New("math overflow")

	// ErrNotProfitable indicates the computed profit is below the caller's minimum.
	ErrNotProfitable = errors.New("arbitrage not profitable")

	// ErrTransferFailure wraps a ledger rejection of one of the settlement transfers.
	ErrTransferFailure = errors.New("transfer failure")

	// ErrNotFound is returned by journal lookups for unknown settlement ids.
	ErrNotFound = errors.New("settlement not found")
)

// Error kinds as recorded in the journal and returned over HTTP.
const (
	KindAtomicityViolation = "atomicity_violation"
	KindMathOverflow       = "math_overflow"
	KindNotProfitable      = "not_profitable"
	KindTransferFailure    = "transfer_failure"
	KindInternal           = "internal"
)

// Kind classifies err into one of the settlement error kinds. It returns "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAtomicityViolation):
		return KindAtomicityViolation
	case errors.Is(err, ErrMathOverflow):
		return KindMathOverflow
	case errors.Is(err, ErrNotProfitable):
		return KindNotProfitable
	case errors.Is(err, ErrTransferFailure):
		return KindTransferFailure
	default:
		return KindInternal
	}
}
