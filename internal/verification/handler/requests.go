package handler

import (
	"trustlessid/internal/verification"
	dErrors "trustlessid/pkg/domain-errors"
	pkgstrings "trustlessid/pkg/platform/strings"
)

// CreateRequest is the verifier's side of the handshake.
type CreateRequest struct {
	CredentialID    string              `json:"credentialId"`
	VerifierName    string              `json:"verifierName"`
	VerifierDomain  string              `json:"verifierDomain"`
	Purpose         string              `json:"purpose"`
	Policy          verification.Policy `json:"policy,omitempty"`
	RequestedFields []string            `json:"requestedFields,omitempty"`
}

func (r *CreateRequest) Validate() error {
	switch {
	case r.CredentialID == "":
		return dErrors.New(dErrors.CodeValidation, "credentialId is required")
	case r.VerifierName == "":
		return dErrors.New(dErrors.CodeValidation, "verifierName is required")
	case r.VerifierDomain == "":
		return dErrors.New(dErrors.CodeValidation, "verifierDomain is required")
	case r.Purpose == "":
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	r.RequestedFields = pkgstrings.DedupeAndTrim(r.RequestedFields)
	return nil
}

// DecideRequest carries the holder's approve/reject decision.
type DecideRequest struct {
	RequestID string `json:"requestId"`
	Decision  string `json:"decision"`
}

func (r *DecideRequest) Validate() error {
	if r.RequestID == "" {
		return dErrors.New(dErrors.CodeValidation, "requestId is required")
	}
	if d := verification.Decision(r.Decision); d != verification.DecisionApprove && d != verification.DecisionReject {
		return dErrors.New(dErrors.CodeValidation, "decision must be approve or reject")
	}
	return nil
}

// ConsumeRequest redeems a proof token with the presenting verifier's
// claimed identity.
type ConsumeRequest struct {
	ProofToken     string `json:"proofToken"`
	VerifierName   string `json:"verifierName"`
	VerifierDomain string `json:"verifierDomain"`
}

func (r *ConsumeRequest) Validate() error {
	switch {
	case r.ProofToken == "":
		return dErrors.New(dErrors.CodeValidation, "proofToken is required")
	case r.VerifierName == "":
		return dErrors.New(dErrors.CodeValidation, "verifierName is required")
	case r.VerifierDomain == "":
		return dErrors.New(dErrors.CodeValidation, "verifierDomain is required")
	}
	return nil
}
