package audit

import "time"

// Action names for the verification flow.
const (
	EventRequestCreated  = "verification.request_created"
	EventRequestApproved = "verification.request_approved"
	EventRequestRejected = "verification.request_rejected"
	EventRequestExpired  = "verification.request_expired"
	EventProofConsumed   = "verification.proof_consumed"
	// EventReplayBlocked records a proof presented after consumption. Kept
	// as its own action so replay attempts are grep-able in the trail.
	EventReplayBlocked = "verification.replay_blocked"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	RequestID      string    `json:"request_id,omitempty"`
	CredentialID   string    `json:"credential_id,omitempty"`
	VerifierName   string    `json:"verifier_name,omitempty"`
	VerifierDomain string    `json:"verifier_domain,omitempty"`
	Purpose        string    `json:"purpose,omitempty"`
	Decision       string    `json:"decision,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}
