package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trustlessid/internal/audit"
	"trustlessid/internal/credential"
	jwttoken "trustlessid/internal/jwt_token"
	"trustlessid/internal/verification/metrics"
	dErrors "trustlessid/pkg/domain-errors"
	"trustlessid/pkg/platform/sentinel"
	"trustlessid/pkg/requestcontext"
)

// Auditor records audit events. Satisfied by audit.Publisher.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ServiceConfig wires the verification service's dependencies.
type ServiceConfig struct {
	Requests    RequestStore
	Receipts    ReceiptStore
	Credentials credential.Store
	Tokens      *jwttoken.JWTService
	Tx          Tx
	Audit       Auditor
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	RequestTTL    time.Duration
	ProofTokenTTL time.Duration
}

// Service orchestrates the consent-bound one-time verification flow:
// a verifier creates a request, the holder approves or rejects it, approval
// mints a single-use proof token, and consuming that proof produces an
// immutable receipt with an explainable trust score.
type Service struct {
	requests    RequestStore
	receipts    ReceiptStore
	credentials credential.Store
	tokens      *jwttoken.JWTService
	tx          Tx
	audit       Auditor
	logger      *slog.Logger
	metrics     *metrics.Metrics

	requestTTL    time.Duration
	proofTokenTTL time.Duration

	tracer trace.Tracer
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.RequestTTL == 0 {
		cfg.RequestTTL = 2 * time.Minute
	}
	if cfg.ProofTokenTTL == 0 {
		cfg.ProofTokenTTL = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		requests:      cfg.Requests,
		receipts:      cfg.Receipts,
		credentials:   cfg.Credentials,
		tokens:        cfg.Tokens,
		tx:            cfg.Tx,
		audit:         cfg.Audit,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		requestTTL:    cfg.RequestTTL,
		proofTokenTTL: cfg.ProofTokenTTL,
		tracer:        otel.Tracer("trustlessid/verification"),
	}
}

// CreateParams is the verifier's side of the handshake.
type CreateParams struct {
	CredentialID    string
	VerifierName    string
	VerifierDomain  string
	Purpose         string
	Policy          Policy
	RequestedFields []string
}

// Create opens a verification request against an existing credential. The
// request starts pending with a fresh nonce and a short expiry window.
func (s *Service) Create(ctx context.Context, p CreateParams) (VerificationRequest, error) {
	ctx, span := s.tracer.Start(ctx, "verification.create")
	defer span.End()

	now := requestcontext.Now(ctx)

	if _, err := s.credentials.FindByID(ctx, p.CredentialID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return VerificationRequest{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return VerificationRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}

	req := VerificationRequest{
		ID:              uuid.NewString(),
		CredentialID:    p.CredentialID,
		VerifierName:    p.VerifierName,
		VerifierDomain:  p.VerifierDomain,
		Purpose:         p.Purpose,
		Policy:          p.Policy,
		RequestedFields: p.RequestedFields,
		Nonce:           uuid.NewString(),
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.requestTTL),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return VerificationRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification request")
	}

	s.metrics.IncrementRequestsCreated()
	s.emitAudit(ctx, audit.Event{
		Action:         audit.EventRequestCreated,
		RequestID:      req.ID,
		CredentialID:   req.CredentialID,
		VerifierName:   req.VerifierName,
		VerifierDomain: req.VerifierDomain,
		Purpose:        req.Purpose,
	})
	s.logger.InfoContext(ctx, "verification request created",
		"request_id", req.ID,
		"credential_id", req.CredentialID,
		"verifier_domain", req.VerifierDomain,
		"expires_at", req.ExpiresAt,
	)
	return req, nil
}

// DecideResult is the holder's decision outcome. ProofToken is set only on
// approval.
type DecideResult struct {
	Request    VerificationRequest
	ProofToken string
}

// Decide applies the holder's approve/reject decision to a pending request.
// A request whose window has already passed is flipped to expired instead:
// expiry takes precedence over a late decision. Approval mints the one-time
// proof bound to this request's identity and nonce.
func (s *Service) Decide(ctx context.Context, requestID string, decision Decision) (DecideResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.decide")
	defer span.End()

	if decision != DecisionApprove && decision != DecisionReject {
		return DecideResult{}, dErrors.New(dErrors.CodeValidation, "decision must be approve or reject")
	}

	now := requestcontext.Now(ctx)

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return DecideResult{}, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		}
		return DecideResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "verification request lookup failed")
	}
	if req.Status != StatusPending {
		return DecideResult{}, dErrors.New(dErrors.CodeInvalidState, "verification request is not pending")
	}
	if req.ExpiredAt(now) {
		if _, err := s.requests.MarkExpired(ctx, requestID); err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
			s.logger.WarnContext(ctx, "failed to mark verification request expired",
				"request_id", requestID,
				"error", err,
			)
		}
		s.metrics.IncrementDecision("expired")
		s.emitAudit(ctx, audit.Event{
			Action:       audit.EventRequestExpired,
			RequestID:    req.ID,
			CredentialID: req.CredentialID,
			Reason:       "decision arrived after expiry",
		})
		return DecideResult{}, dErrors.New(dErrors.CodeExpired, "verification request expired")
	}

	if decision == DecisionReject {
		updated, err := s.markDecided(ctx, requestID, StatusRejected, now)
		if err != nil {
			return DecideResult{}, err
		}
		s.metrics.IncrementDecision("rejected")
		s.emitAudit(ctx, audit.Event{
			Action:       audit.EventRequestRejected,
			RequestID:    updated.ID,
			CredentialID: updated.CredentialID,
		})
		return DecideResult{Request: updated}, nil
	}

	updated, err := s.markDecided(ctx, requestID, StatusApproved, now)
	if err != nil {
		return DecideResult{}, err
	}

	token, err := s.tokens.GenerateProofToken(jwttoken.ProofPayload{
		RequestID:      updated.ID,
		CredentialID:   updated.CredentialID,
		VerifierName:   updated.VerifierName,
		VerifierDomain: updated.VerifierDomain,
		Purpose:        updated.Purpose,
		Nonce:          updated.Nonce,
	}, s.proofTokenTTL)
	if err != nil {
		return DecideResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue proof token")
	}

	s.metrics.IncrementDecision("approved")
	s.emitAudit(ctx, audit.Event{
		Action:         audit.EventRequestApproved,
		RequestID:      updated.ID,
		CredentialID:   updated.CredentialID,
		VerifierName:   updated.VerifierName,
		VerifierDomain: updated.VerifierDomain,
		Purpose:        updated.Purpose,
	})
	s.logger.InfoContext(ctx, "verification request approved",
		"request_id", updated.ID,
		"credential_id", updated.CredentialID,
	)
	return DecideResult{Request: updated, ProofToken: token}, nil
}

func (s *Service) markDecided(ctx context.Context, requestID string, status RequestStatus, now time.Time) (VerificationRequest, error) {
	updated, err := s.requests.MarkDecided(ctx, requestID, status, now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return VerificationRequest{}, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			// Lost a race with a concurrent decision.
			return VerificationRequest{}, dErrors.New(dErrors.CodeInvalidState, "verification request is not pending")
		default:
			return VerificationRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification request")
		}
	}
	return updated, nil
}

// Consume redeems a one-time proof token. On success the request is
// atomically marked consumed, a receipt is written, and the result carries
// the trust breakdown plus an explainability trace. Every failure mode maps
// to its own error code; replay is CodeConflict, distinct from everything
// else, so clients can tell "someone already used this" apart.
func (s *Service) Consume(ctx context.Context, proofToken, verifierName, verifierDomain string) (ConsumeResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.consume")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.ObserveConsumeLatency(time.Since(start))
	}()

	now := requestcontext.Now(ctx)

	claims, err := s.tokens.ValidateProofToken(proofToken)
	if err != nil {
		s.metrics.IncrementConsumeOutcome("invalid_proof")
		return ConsumeResult{}, err
	}

	if !strings.EqualFold(claims.VerifierName, verifierName) ||
		!strings.EqualFold(claims.VerifierDomain, verifierDomain) {
		s.metrics.IncrementConsumeOutcome("identity_mismatch")
		s.logger.WarnContext(ctx, "proof presented by mismatched verifier",
			"request_id", claims.RequestID,
			"claimed_domain", verifierDomain,
			"token_domain", claims.VerifierDomain,
		)
		return ConsumeResult{}, dErrors.New(dErrors.CodeForbidden, "proof token does not match verifier identity")
	}

	req, err := s.requests.FindByID(ctx, claims.RequestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementConsumeOutcome("not_found")
			return ConsumeResult{}, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		}
		return ConsumeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "verification request lookup failed")
	}

	// The nonce binds the proof to this exact request; a mismatch means the
	// token was minted for a different incarnation of the ID.
	if req.Nonce != claims.Nonce {
		s.metrics.IncrementConsumeOutcome("invalid_proof")
		return ConsumeResult{}, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired proof token")
	}

	switch req.Status {
	case StatusApproved:
		// eligible, continue
	case StatusConsumed:
		return ConsumeResult{}, s.replayBlocked(ctx, req)
	default:
		s.metrics.IncrementConsumeOutcome("invalid_state")
		return ConsumeResult{}, dErrors.New(dErrors.CodeInvalidState, "verification request already used or not approved")
	}

	if req.ExpiredAt(now) {
		s.metrics.IncrementConsumeOutcome("expired")
		return ConsumeResult{}, dErrors.New(dErrors.CodeExpired, "verification request expired")
	}

	var result ConsumeResult
	err = s.tx.RunInTx(ctx, func(requests RequestStore, receipts ReceiptStore) error {
		consumed, err := requests.Consume(ctx, req.ID, now)
		if err != nil {
			return err
		}

		cred, err := s.credentials.FindByID(ctx, consumed.CredentialID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "credential not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
		}

		breakdown := CalculateTrustBreakdown(cred, now)
		decision := ReceiptFail
		if cred.IsActive() {
			decision = ReceiptPass
		}

		receipt := Receipt{
			ID:                    uuid.NewString(),
			VerificationRequestID: consumed.ID,
			CredentialID:          cred.ID,
			VerifierName:          verifierName,
			VerifierDomain:        verifierDomain,
			Purpose:               consumed.Purpose,
			Decision:              decision,
			DisclosedData: DisclosedData{
				CredentialType: cred.Type,
				IssueDate:      cred.IssuedAt,
				IsValid:        cred.IsActive(),
			},
			TrustScore:  breakdown.FinalScore,
			ReceiptHash: receiptHash(consumed.ID, cred.ID, verifierDomain, now, breakdown.FinalScore),
			CreatedAt:   now,
		}
		if err := receipts.Save(ctx, receipt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist receipt")
		}

		result = ConsumeResult{
			Receipt:        receipt,
			Explainability: buildExplainability(cred, consumed, verifierName, verifierDomain, breakdown),
		}
		return nil
	})
	if err != nil {
		switch {
		case dErrors.Is(err, dErrors.CodeNotFound), dErrors.Is(err, dErrors.CodeInternal):
			return ConsumeResult{}, err
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return ConsumeResult{}, s.replayBlocked(ctx, req)
		case errors.Is(err, sentinel.ErrInvalidState):
			s.metrics.IncrementConsumeOutcome("invalid_state")
			return ConsumeResult{}, dErrors.New(dErrors.CodeInvalidState, "verification request already used or not approved")
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncrementConsumeOutcome("not_found")
			return ConsumeResult{}, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		default:
			return ConsumeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume verification proof")
		}
	}

	// Best-effort: a transient failure here must not fail the consume. The
	// counter only feeds future advisory scores.
	if err := s.credentials.IncrementVerificationCount(ctx, req.CredentialID); err != nil {
		s.logger.WarnContext(ctx, "verification count increment failed",
			"credential_id", req.CredentialID,
			"error", err,
		)
	}

	s.metrics.IncrementConsumeOutcome("consumed")
	s.emitAudit(ctx, audit.Event{
		Action:         audit.EventProofConsumed,
		RequestID:      req.ID,
		CredentialID:   req.CredentialID,
		VerifierName:   verifierName,
		VerifierDomain: verifierDomain,
		Purpose:        req.Purpose,
		Decision:       string(result.Receipt.Decision),
	})
	s.logger.InfoContext(ctx, "verification proof consumed",
		"request_id", req.ID,
		"credential_id", req.CredentialID,
		"decision", result.Receipt.Decision,
		"trust_score", result.Receipt.TrustScore,
	)
	return result, nil
}

func (s *Service) replayBlocked(ctx context.Context, req VerificationRequest) error {
	s.metrics.IncrementConsumeOutcome("replay_blocked")
	s.emitAudit(ctx, audit.Event{
		Action:       audit.EventReplayBlocked,
		RequestID:    req.ID,
		CredentialID: req.CredentialID,
		Reason:       "proof already consumed",
	})
	s.logger.WarnContext(ctx, "replay attempt blocked",
		"request_id", req.ID,
		"credential_id", req.CredentialID,
	)
	return dErrors.New(dErrors.CodeConflict, "proof already consumed; replay blocked")
}

// QuickVerify is the legacy, non-consent-bound score lookup. It does not
// touch the one-time-proof state machine.
func (s *Service) QuickVerify(ctx context.Context, credentialID string) (QuickVerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.quick_verify")
	defer span.End()

	now := requestcontext.Now(ctx)

	cred, err := s.credentials.FindByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return QuickVerifyResult{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return QuickVerifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}

	breakdown := CalculateTrustBreakdown(cred, now)

	if err := s.credentials.IncrementVerificationCount(ctx, credentialID); err != nil {
		s.logger.WarnContext(ctx, "verification count increment failed",
			"credential_id", credentialID,
			"error", err,
		)
	}

	return QuickVerifyResult{
		CredentialID:   cred.ID,
		IsValid:        cred.IsActive(),
		TrustScore:     breakdown.FinalScore,
		IssueDate:      cred.IssuedAt,
		CredentialType: cred.Type,
		VerifiedAt:     now,
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

func buildExplainability(cred credential.Credential, req VerificationRequest, verifierName, verifierDomain string, breakdown TrustBreakdown) Explainability {
	checks := []PolicyCheck{
		{
			Name:   "Credential is active",
			Passed: cred.IsActive(),
			Detail: fmt.Sprintf("status=%s", cred.Status),
		},
		{
			Name:   "Request approved by holder",
			Passed: true,
			Detail: "request_status=approved",
		},
		{
			Name:   "Request not expired",
			Passed: true,
			Detail: fmt.Sprintf("expires_at=%s", req.ExpiresAt.UTC().Format(time.RFC3339)),
		},
		{
			Name:   "Verifier identity matches token",
			Passed: true,
			Detail: fmt.Sprintf("%s (%s)", verifierName, verifierDomain),
		},
		{
			Name:   "Replay protection",
			Passed: true,
			Detail: "Proof consumed exactly once and request marked as consumed",
		},
	}

	summary := "Verification failed because credential is not active."
	if cred.IsActive() {
		summary = "Verification passed with consent-bound one-time proof."
	}

	return Explainability{
		PolicyChecks:   checks,
		TrustBreakdown: breakdown,
		Summary:        summary,
	}
}

// receiptHash fingerprints the facts of a consumption. Deterministic and
// non-reversible; suitable as a tamper-evidence audit anchor.
func receiptHash(requestID, credentialID, verifierDomain string, consumedAt time.Time, trustScore int) string {
	material := fmt.Sprintf("%s:%s:%s:%s:%d",
		requestID,
		credentialID,
		verifierDomain,
		consumedAt.UTC().Format(time.RFC3339Nano),
		trustScore,
	)
	sum := sha256.Sum256([]byte(material))
	return "sha256:" + hex.EncodeToString(sum[:])
}
