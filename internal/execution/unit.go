package execution

import (
	"github.com/google/uuid"

	"github.com/congo-pay/flash_settlement/internal/authority"
)

// Oracle answers questions about the atomic unit an operation runs in.
type Oracle interface {
	IntrospectionHandle() authority.Identity
	SoleOperation(name string) bool
}

// Unit describes one atomic unit of execution and the operations submitted in it.
type Unit struct {
	ID         string
	handle     authority.Identity
	operations []string
}

// NewUnit builds a unit presenting handle and carrying operations in submission order.
func NewUnit(handle authority.Identity, operations ...string) Unit {
	ops := make([]string, len(operations))
	copy(ops, operations)
	return Unit{ID: uuid.NewString(), handle: handle, operations: ops}
}

// IntrospectionHandle returns the handle presented by the submitter.
func (u Unit) IntrospectionHandle() authority.Identity {
	return u.handle
}

// SoleOperation reports whether name is the only operation in the unit.
func (u Unit) SoleOperation(name string) bool {
	return len(u.operations) == 1 && u.operations[0] == name
}

// Operations returns a copy of the submitted operations.
func (u Unit) Operations() []string {
	ops := make([]string, len(u.operations))
	copy(ops, u.operations)
	return ops
}
