package handler

import (
	"time"

	"trustlessid/internal/verification"
)

// CreateResponse echoes the opened request, including the nonce the proof
// token will later be bound to.
type CreateResponse struct {
	RequestID      string    `json:"requestId"`
	VerifierName   string    `json:"verifierName"`
	VerifierDomain string    `json:"verifierDomain"`
	Purpose        string    `json:"purpose"`
	Nonce          string    `json:"nonce"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Status         string    `json:"status"`
}

func NewCreateResponse(req verification.VerificationRequest) CreateResponse {
	return CreateResponse{
		RequestID:      req.ID,
		VerifierName:   req.VerifierName,
		VerifierDomain: req.VerifierDomain,
		Purpose:        req.Purpose,
		Nonce:          req.Nonce,
		ExpiresAt:      req.ExpiresAt,
		Status:         string(req.Status),
	}
}

// DecideResponse carries the decision outcome. ApprovedAt and ProofToken are
// present only on approval.
type DecideResponse struct {
	RequestID  string     `json:"requestId"`
	Status     string     `json:"status"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	ProofToken string     `json:"proofToken,omitempty"`
}

func NewDecideResponse(result verification.DecideResult) DecideResponse {
	return DecideResponse{
		RequestID:  result.Request.ID,
		Status:     string(result.Request.Status),
		ApprovedAt: result.Request.ApprovedAt,
		ProofToken: result.ProofToken,
	}
}

// ConsumeResponse is the verifier-facing view of a consumed proof: the
// receipt facts plus the explainability trace. Disclosed fields only, never
// raw credential data.
type ConsumeResponse struct {
	RequestID      string                      `json:"requestId"`
	CredentialID   string                      `json:"credentialId"`
	IsValid        bool                        `json:"isValid"`
	TrustScore     int                         `json:"trustScore"`
	CredentialType string                      `json:"credentialType"`
	IssueDate      time.Time                   `json:"issueDate"`
	VerifiedAt     time.Time                   `json:"verifiedAt"`
	ReceiptID      string                      `json:"receiptId"`
	ReceiptHash    string                      `json:"receiptHash"`
	Explainability verification.Explainability `json:"explainability"`
}

func NewConsumeResponse(result verification.ConsumeResult) ConsumeResponse {
	receipt := result.Receipt
	return ConsumeResponse{
		RequestID:      receipt.VerificationRequestID,
		CredentialID:   receipt.CredentialID,
		IsValid:        receipt.DisclosedData.IsValid,
		TrustScore:     receipt.TrustScore,
		CredentialType: receipt.DisclosedData.CredentialType,
		IssueDate:      receipt.DisclosedData.IssueDate,
		VerifiedAt:     receipt.CreatedAt,
		ReceiptID:      receipt.ID,
		ReceiptHash:    receipt.ReceiptHash,
		Explainability: result.Explainability,
	}
}

// QuickVerifyResponse is the legacy lookup result.
type QuickVerifyResponse struct {
	IsValid        bool      `json:"isValid"`
	TrustScore     int       `json:"trustScore"`
	IssueDate      time.Time `json:"issueDate"`
	CredentialType string    `json:"credentialType"`
	VerifiedAt     time.Time `json:"verifiedAt"`
}

func NewQuickVerifyResponse(result verification.QuickVerifyResult) QuickVerifyResponse {
	return QuickVerifyResponse{
		IsValid:        result.IsValid,
		TrustScore:     result.TrustScore,
		IssueDate:      result.IssueDate,
		CredentialType: result.CredentialType,
		VerifiedAt:     result.VerifiedAt,
	}
}
