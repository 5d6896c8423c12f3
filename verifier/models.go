package verifier

import "time"

// Credential is a capability record: holding it with IsVerifier set grants
// verifier-only operations. Verifier rights are never inferred from a user's
// role; callers pass the credential record itself.
type Credential struct {
	ID           string
	HolderID     string
	IsVerifier   bool
	Level        int16
	Organization string
	CreatedAt    time.Time
}

// Authorizes reports whether the credential grants verifier rights to caller.
// A nil credential authorizes nothing.
func (c *Credential) Authorizes(caller string) bool {
	return c != nil && c.IsVerifier && c.HolderID == caller
}
