package authority

// Signer authorizes ledger movements out of accounts it owns.
type Signer interface {
	Identity() Identity
}

// UserSigner is a human principal whose credentials were verified upstream.
type UserSigner struct {
	principalID string
	id          Identity
}

// User builds a signer for an authenticated principal.
func User(principalID string) UserSigner {
	return UserSigner{principalID: principalID, id: ForPrincipal(principalID)}
}

// Identity returns the ledger identity of the principal.
func (u UserSigner) Identity() Identity { return u.id }

// PrincipalID returns the principal the signer was built for.
func (u UserSigner) PrincipalID() string { return u.principalID }

// ProgramAuthority is the capability to sign for accounts owned by a derived
// authority. Hold it only where those movements are allowed to originate.
type ProgramAuthority struct {
	label string
	id    Identity
}

// NewProgramAuthority derives the authority for label under programID.
func NewProgramAuthority(programID, label string) *ProgramAuthority {
	return &ProgramAuthority{label: label, id: Derive(programID, label)}
}

// Identity returns the derived identity.
func (p *ProgramAuthority) Identity() Identity { return p.id }

// Label returns the seed label the authority was derived from.
func (p *ProgramAuthority) Label() string { return p.label }
