package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"trustlessid/internal/platform/middleware"
	"trustlessid/internal/verification"
	dErrors "trustlessid/pkg/domain-errors"
	"trustlessid/pkg/platform/httputil"
)

// Service defines the verification operations the handler exposes.
type Service interface {
	Create(ctx context.Context, p verification.CreateParams) (verification.VerificationRequest, error)
	Decide(ctx context.Context, requestID string, decision verification.Decision) (verification.DecideResult, error)
	Consume(ctx context.Context, proofToken, verifierName, verifierDomain string) (verification.ConsumeResult, error)
	QuickVerify(ctx context.Context, credentialID string) (verification.QuickVerifyResult, error)
}

// Handler handles the verification endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new verification Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	verifyRouter := chi.NewRouter()
	verifyRouter.Use(middleware.Recovery(h.logger))
	verifyRouter.Use(middleware.RequestID)
	verifyRouter.Use(middleware.Logger(h.logger))
	verifyRouter.Use(middleware.Timeout(30 * time.Second))
	verifyRouter.Use(middleware.ContentTypeJSON)
	verifyRouter.Post("/verify/request", h.handleCreateRequest)
	verifyRouter.Post("/verify/approve", h.handleDecide)
	verifyRouter.Post("/verify/consume", h.handleConsume)
	verifyRouter.Get("/verify", h.handleQuickVerify)

	r.Mount("/", verifyRouter)
}

// handleCreateRequest opens a verification request on behalf of a verifier.
func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, verification.CreateParams{
		CredentialID:    req.CredentialID,
		VerifierName:    req.VerifierName,
		VerifierDomain:  req.VerifierDomain,
		Purpose:         req.Purpose,
		Policy:          req.Policy,
		RequestedFields: req.RequestedFields,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to create verification request")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, NewCreateResponse(created))
}

// handleDecide applies the holder's approve/reject decision.
func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DecideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decided, err := h.service.Decide(ctx, req.RequestID, verification.Decision(req.Decision))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to decide verification request")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewDecideResponse(decided))
}

// handleConsume redeems a one-time proof token.
func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ConsumeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Consume(ctx, req.ProofToken, req.VerifierName, req.VerifierDomain)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to consume verification proof")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewConsumeResponse(result))
}

// handleQuickVerify is the stateless, non-consent-bound score lookup.
func (h *Handler) handleQuickVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	credentialID := r.URL.Query().Get("id")
	if credentialID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "id query parameter is required"))
		return
	}

	result, err := h.service.QuickVerify(ctx, credentialID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to verify credential")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewQuickVerifyResponse(result))
}

// writeServiceError passes coded domain errors through to the envelope and
// logs everything else as a 500 without leaking detail.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if dErrors.From(err).Code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
