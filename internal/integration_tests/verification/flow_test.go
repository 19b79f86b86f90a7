package verification

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustlessid/internal/audit"
	"trustlessid/internal/credential"
	jwttoken "trustlessid/internal/jwt_token"
	httptransport "trustlessid/internal/transport/http"
	"trustlessid/internal/verification"
	"trustlessid/internal/verification/handler"
	"trustlessid/pkg/testutil"
)

// newStack wires the full in-process stack: memory stores, real token
// service, real service, real router. Only the network is missing.
func newStack(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	requests := verification.NewInMemoryRequestStore()
	receipts := verification.NewInMemoryReceiptStore()
	credentials := credential.NewInMemoryStore()
	credentials.Seed(time.Now())
	tokens := jwttoken.NewJWTService("integration-test-key", "trustlessid", "trustlessid-api")
	publisher := audit.NewPublisher(audit.NewInMemoryStore())
	t.Cleanup(publisher.Close)

	svc := verification.NewService(verification.ServiceConfig{
		Requests:    requests,
		Receipts:    receipts,
		Credentials: credentials,
		Tokens:      tokens,
		Tx:          verification.NewInMemoryTx(requests, receipts),
		Audit:       publisher,
		Logger:      logger,
	})

	return httptransport.NewRouter(httptransport.Deps{
		Verification: handler.New(svc, logger),
		Logger:       logger,
	})
}

func TestVerificationFlow_HappyPath(t *testing.T) {
	router := newStack(t)

	// verifier opens a request
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/request", map[string]any{
		"credentialId":   "cred_demo1active",
		"verifierName":   "Acme Corp",
		"verifierDomain": "acme.example.com",
		"purpose":        "age_check",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	created := testutil.DecodeJSON(t, rr)
	requestID := created["requestId"].(string)
	assert.Equal(t, "pending", created["status"])
	assert.NotEmpty(t, created["nonce"])

	// holder approves
	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/approve", map[string]any{
		"requestId": requestID,
		"decision":  "approve",
	}))
	require.Equal(t, http.StatusOK, rr.Code)
	approved := testutil.DecodeJSON(t, rr)
	assert.Equal(t, "approved", approved["status"])
	proofToken := approved["proofToken"].(string)
	require.NotEmpty(t, proofToken)

	// verifier consumes the proof
	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/consume", map[string]any{
		"proofToken":     proofToken,
		"verifierName":   "Acme Corp",
		"verifierDomain": "acme.example.com",
	}))
	require.Equal(t, http.StatusOK, rr.Code)
	consumed := testutil.DecodeJSON(t, rr)
	assert.Equal(t, requestID, consumed["requestId"])
	assert.Equal(t, true, consumed["isValid"])
	assert.Equal(t, float64(83), consumed["trustScore"])
	assert.NotEmpty(t, consumed["receiptId"])

	// a second presentation of the same proof is a replay
	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/consume", map[string]any{
		"proofToken":     proofToken,
		"verifierName":   "Acme Corp",
		"verifierDomain": "acme.example.com",
	}))
	require.Equal(t, http.StatusConflict, rr.Code)
	replay := testutil.DecodeJSON(t, rr)
	assert.Equal(t, "conflict", replay["error"])
}

func TestVerificationFlow_RejectedRequestYieldsNoProof(t *testing.T) {
	router := newStack(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/request", map[string]any{
		"credentialId":   "cred_demo2fresh",
		"verifierName":   "Acme Corp",
		"verifierDomain": "acme.example.com",
		"purpose":        "kyc",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	requestID := testutil.DecodeJSON(t, rr)["requestId"].(string)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/approve", map[string]any{
		"requestId": requestID,
		"decision":  "reject",
	}))
	require.Equal(t, http.StatusOK, rr.Code)
	rejected := testutil.DecodeJSON(t, rr)
	assert.Equal(t, "rejected", rejected["status"])
	assert.NotContains(t, rejected, "proofToken")

	// the decision is final
	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/approve", map[string]any{
		"requestId": requestID,
		"decision":  "approve",
	}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_state", testutil.DecodeJSON(t, rr)["error"])
}

func TestVerificationFlow_ProofBoundToVerifier(t *testing.T) {
	router := newStack(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/request", map[string]any{
		"credentialId":   "cred_demo1active",
		"verifierName":   "Acme Corp",
		"verifierDomain": "acme.example.com",
		"purpose":        "age_check",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	requestID := testutil.DecodeJSON(t, rr)["requestId"].(string)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/approve", map[string]any{
		"requestId": requestID,
		"decision":  "approve",
	}))
	require.Equal(t, http.StatusOK, rr.Code)
	proofToken := testutil.DecodeJSON(t, rr)["proofToken"].(string)

	// a different verifier cannot redeem a stolen proof
	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify/consume", map[string]any{
		"proofToken":     proofToken,
		"verifierName":   "Mallory Inc",
		"verifierDomain": "mallory.example.com",
	}))
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", testutil.DecodeJSON(t, rr)["error"])
}

func TestVerificationFlow_QuickVerify(t *testing.T) {
	router := newStack(t)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/verify?id=cred_demo3expired", nil)
	rr := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := testutil.DecodeJSON(t, rr)
	assert.Equal(t, false, resp["isValid"])
	assert.Equal(t, "drivers_license", resp["credentialType"])
}
