package credential

import "time"

// Status is the issuer-side lifecycle state of a credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Credential is the external collaborator entity the verification flow reads.
// The only mutation this service performs is the verification counter, and
// that one is best-effort telemetry, not a security control.
type Credential struct {
	ID       string
	Type     string
	Status   Status
	IssuedAt time.Time

	// VerificationCount is monotonically non-decreasing. Lost updates under
	// race are tolerated; it only feeds the advisory trust score.
	VerificationCount int
}

// IsActive reports whether the credential passes the binary validity check.
func (c Credential) IsActive() bool {
	return c.Status == StatusActive
}
