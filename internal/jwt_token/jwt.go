package jwttoken

import (
	"errors"
	"time"

	dErrors "trustlessid/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token use tags. A token minted for one use is never accepted for another,
// so a long-lived access token can not be replayed as a verification proof.
const (
	TokenUseAccess            = "access"
	TokenUseVerificationProof = "verification_proof"
)

// Claims represents the JWT claims for our signed tokens. Access tokens
// populate the user fields; verification proofs populate the proof fields.
type Claims struct {
	TokenUse string `json:"token_use"`

	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`

	RequestID      string `json:"request_id,omitempty"`
	CredentialID   string `json:"credential_id,omitempty"`
	VerifierName   string `json:"verifier_name,omitempty"`
	VerifierDomain string `json:"verifier_domain,omitempty"`
	Purpose        string `json:"purpose,omitempty"`
	Nonce          string `json:"nonce,omitempty"`

	jwt.RegisteredClaims
}

// ProofPayload is the data bound into a verification-proof token. The nonce
// ties the proof to the exact request it was minted for.
type ProofPayload struct {
	RequestID      string
	CredentialID   string
	VerifierName   string
	VerifierDomain string
	Purpose        string
	Nonce          string
}

// JWTService handles JWT creation and validation. The signing key is
// injected so the service stays pure and testable.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken mints a long-lived session token.
func (s *JWTService) GenerateAccessToken(userID string, email string, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenUse:         TokenUseAccess,
		UserID:           userID,
		Email:            email,
		RegisteredClaims: s.registeredClaims(expiresIn),
	})
	return newToken.SignedString(s.signingKey)
}

// GenerateProofToken mints a short-lived single-purpose verification proof
// bound to a specific request.
func (s *JWTService) GenerateProofToken(payload ProofPayload, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenUse:         TokenUseVerificationProof,
		RequestID:        payload.RequestID,
		CredentialID:     payload.CredentialID,
		VerifierName:     payload.VerifierName,
		VerifierDomain:   payload.VerifierDomain,
		Purpose:          payload.Purpose,
		Nonce:            payload.Nonce,
		RegisteredClaims: s.registeredClaims(expiresIn),
	})
	return newToken.SignedString(s.signingKey)
}

func (s *JWTService) registeredClaims(expiresIn time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    s.issuer,
		Audience:  []string{s.audience},
		ID:        uuid.NewString(),
	}
}

// ValidateAccessToken checks signature and expiry on a session token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.TokenUse != TokenUseAccess {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// errInvalidProof is the single failure returned for every bad proof.
// Signature mismatch, expiry, malformed payload and wrong token use are
// deliberately indistinguishable to the caller: a distinguishable error
// would give an attacker an oracle for which check tripped.
var errInvalidProof = dErrors.New(dErrors.CodeUnauthorized, "invalid or expired proof token")

// ValidateProofToken checks a verification-proof token and fails closed.
func (s *JWTService) ValidateProofToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, errInvalidProof
	}
	if claims.TokenUse != TokenUseVerificationProof {
		return nil, errInvalidProof
	}
	if claims.RequestID == "" || claims.Nonce == "" {
		return nil, errInvalidProof
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
