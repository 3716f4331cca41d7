package authority

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// IdentitySize is the byte length of an Identity.
const IdentitySize = 32

const derivedDomain = "ProgramDerivedAuthority"

// ErrInvalidIdentity is returned when an encoded identity cannot be decoded.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity names a principal, a program-derived authority or a system facility.
type Identity [IdentitySize]byte

// Zero is the empty identity. It never owns an account.
var Zero Identity

// String renders the identity as base58.
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether id is the empty identity.
func (id Identity) IsZero() bool {
	return id == Zero
}

// Parse decodes a base58 identity.
func Parse(s string) (Identity, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != IdentitySize {
		return Zero, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIdentity, IdentitySize, len(raw))
	}
	var id Identity
	copy(id[:], raw)
	return id, nil
}

// Derive computes the deterministic authority for label under programID.
// No private key exists for the result.
func Derive(programID, label string) Identity {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(programID))
	h.Write([]byte{0})
	h.Write([]byte(label))
	h.Write([]byte(derivedDomain))
	var id Identity
	copy(id[:], h.Sum(nil))
	return id
}

// ForPrincipal maps an authenticated principal id (a user UUID) to its ledger identity.
func ForPrincipal(principalID string) Identity {
	return Identity(blake2b.Sum256([]byte("principal:" + principalID)))
}

// CanonicalIntrospection is the identity of the host's instruction-introspection
// facility. Execution units presenting any other handle are rejected.
var CanonicalIntrospection = Derive("system", "instructions")
