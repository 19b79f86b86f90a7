package verification

import (
	"time"

	"trustlessid/internal/credential"
)

// Trust score constants. The score is advisory telemetry layered on top of
// the binary pass/fail decision; it never gates consumption.
const (
	trustBase                = 70
	maxVerificationPoints    = 10
	maxAgePoints             = 20
	expiredCredentialPenalty = 50
)

// TrustBreakdown is the explainable decomposition of a trust score.
type TrustBreakdown struct {
	Base               int `json:"base"`
	VerificationPoints int `json:"verificationPoints"`
	AgePoints          int `json:"agePoints"`
	ExpiredPenalty     int `json:"expiredPenalty"`
	FinalScore         int `json:"finalScore"`
}

// CalculateTrustBreakdown scores a credential at the given instant.
// This is pure domain logic - no I/O, no side effects.
//
// Revocation deliberately does not zero out verification points: a revoked
// credential already fails the pass/fail decision, and the numeric score
// stays an honest description of the credential's history.
func CalculateTrustBreakdown(cred credential.Credential, now time.Time) TrustBreakdown {
	b := TrustBreakdown{Base: trustBase}

	b.VerificationPoints = min(cred.VerificationCount, maxVerificationPoints)

	days := int(now.Sub(cred.IssuedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	b.AgePoints = min(days, maxAgePoints)

	if cred.Status == credential.StatusExpired {
		b.ExpiredPenalty = expiredCredentialPenalty
	}

	score := b.Base + b.VerificationPoints + b.AgePoints - b.ExpiredPenalty
	b.FinalScore = min(100, max(0, score))
	return b
}
