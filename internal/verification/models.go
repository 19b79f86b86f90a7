package verification

import "time"

// RequestStatus is the lifecycle state of a verification request.
//
// pending -> {approved, rejected, expired}; approved -> consumed.
// rejected, expired and consumed are terminal: no transition ever leaves them.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusExpired  RequestStatus = "expired"
	StatusConsumed RequestStatus = "consumed"
)

// Terminal reports whether the status can never change again.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusConsumed
}

// Decision is the holder's answer to a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Policy carries the verifier's structured options. The service treats it as
// opaque; it is echoed into the audit trail.
type Policy map[string]any

// VerificationRequest models one consent-bound verification handshake.
//
// Invariants: ApprovedAt is set iff the status has passed through approved;
// ConsumedAt is set iff the status is consumed.
type VerificationRequest struct {
	ID              string
	CredentialID    string
	VerifierName    string
	VerifierDomain  string
	Purpose         string
	Policy          Policy
	RequestedFields []string

	// Nonce is single-use and embedded in the eventual proof token to bind
	// the proof to this exact request.
	Nonce string

	Status     RequestStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ApprovedAt *time.Time
	ConsumedAt *time.Time
}

// ExpiredAt reports whether the request's window has passed at the given time.
func (r VerificationRequest) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// ReceiptDecision is the outcome recorded on a receipt.
type ReceiptDecision string

const (
	ReceiptPass ReceiptDecision = "pass"
	ReceiptFail ReceiptDecision = "fail"
)

// DisclosedData is the minimal derived view released to the verifier.
// Never raw personal fields.
type DisclosedData struct {
	CredentialType string    `json:"credentialType"`
	IssueDate      time.Time `json:"issueDate"`
	IsValid        bool      `json:"isValid"`
}

// Receipt is the immutable record of one successful consumption. Created
// exactly once per consumed request, never mutated or deleted.
type Receipt struct {
	ID                    string
	VerificationRequestID string
	CredentialID          string
	VerifierName          string
	VerifierDomain        string
	Purpose               string
	Decision              ReceiptDecision
	DisclosedData         DisclosedData
	TrustScore            int
	ReceiptHash           string
	CreatedAt             time.Time
}

// PolicyCheck is one named check in the explainability trace.
type PolicyCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Explainability is the auditable trace returned alongside a receipt.
type Explainability struct {
	PolicyChecks   []PolicyCheck  `json:"policyChecks"`
	TrustBreakdown TrustBreakdown `json:"trustBreakdown"`
	Summary        string         `json:"summary"`
}

// ConsumeResult bundles everything a successful consume returns.
type ConsumeResult struct {
	Receipt        Receipt
	Explainability Explainability
}

// QuickVerifyResult is the legacy, non-consent-bound score lookup.
type QuickVerifyResult struct {
	CredentialID   string
	IsValid        bool
	TrustScore     int
	IssueDate      time.Time
	CredentialType string
	VerifiedAt     time.Time
}
