package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trustlessid/pkg/platform/sentinel"
)

// Redis key prefix for verification requests
const requestKeyPrefix = "vreq:"

// Lua scripts make every lifecycle transition a single atomic server-side
// step, mirroring the SQL store's conditional UPDATEs. GET-then-SET from the
// client would reopen the replay window the whole design exists to close.
var (
	decideScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 'missing' end
local req = cjson.decode(raw)
if req.status ~= 'pending' then return req.status end
req.status = ARGV[1]
if ARGV[1] == 'approved' then req.approved_at = ARGV[2] end
redis.call('SET', KEYS[1], cjson.encode(req))
return 'ok'
`)

	consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 'missing' end
local req = cjson.decode(raw)
if req.status ~= 'approved' then return req.status end
req.status = 'consumed'
req.consumed_at = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(req))
return 'ok'
`)
)

// RedisRequestStore keeps verification requests in Redis. Intended for
// cache-style single-store deployments; the Postgres store is the one with
// transactional receipts.
type RedisRequestStore struct {
	client *redis.Client
}

func NewRedisRequestStore(client *redis.Client) *RedisRequestStore {
	return &RedisRequestStore{client: client}
}

// redisRequest is the wire form stored in Redis. Times are RFC3339Nano
// strings so the Lua scripts can pass them through opaquely.
type redisRequest struct {
	ID              string   `json:"id"`
	CredentialID    string   `json:"credential_id"`
	VerifierName    string   `json:"verifier_name"`
	VerifierDomain  string   `json:"verifier_domain"`
	Purpose         string   `json:"purpose"`
	Policy          Policy   `json:"policy,omitempty"`
	RequestedFields []string `json:"requested_fields,omitempty"`
	Nonce           string   `json:"nonce"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
	ExpiresAt       string   `json:"expires_at"`
	ApprovedAt      string   `json:"approved_at,omitempty"`
	ConsumedAt      string   `json:"consumed_at,omitempty"`
}

func (s *RedisRequestStore) Create(ctx context.Context, req VerificationRequest) error {
	raw, err := json.Marshal(toRedisRequest(req))
	if err != nil {
		return fmt.Errorf("marshal verification request: %w", err)
	}
	ok, err := s.client.SetNX(ctx, requestKeyPrefix+req.ID, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("create verification request: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisRequestStore) FindByID(ctx context.Context, requestID string) (VerificationRequest, error) {
	raw, err := s.client.Get(ctx, requestKeyPrefix+requestID).Result()
	if errors.Is(err, redis.Nil) {
		return VerificationRequest{}, sentinel.ErrNotFound
	}
	if err != nil {
		return VerificationRequest{}, fmt.Errorf("find verification request: %w", err)
	}
	return parseRedisRequest([]byte(raw))
}

func (s *RedisRequestStore) MarkDecided(ctx context.Context, requestID string, status RequestStatus, decidedAt time.Time) (VerificationRequest, error) {
	res, err := decideScript.Run(ctx, s.client,
		[]string{requestKeyPrefix + requestID},
		string(status), decidedAt.UTC().Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		return VerificationRequest{}, fmt.Errorf("mark verification request decided: %w", err)
	}
	if err := mapScriptResult(res, nil); err != nil {
		return VerificationRequest{}, err
	}
	return s.FindByID(ctx, requestID)
}

func (s *RedisRequestStore) MarkExpired(ctx context.Context, requestID string) (VerificationRequest, error) {
	return s.MarkDecided(ctx, requestID, StatusExpired, time.Time{})
}

func (s *RedisRequestStore) Consume(ctx context.Context, requestID string, consumedAt time.Time) (VerificationRequest, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{requestKeyPrefix + requestID},
		consumedAt.UTC().Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		return VerificationRequest{}, fmt.Errorf("consume verification request: %w", err)
	}
	if err := mapScriptResult(res, map[string]error{
		string(StatusConsumed): sentinel.ErrAlreadyUsed,
	}); err != nil {
		return VerificationRequest{}, err
	}
	return s.FindByID(ctx, requestID)
}

func mapScriptResult(res string, special map[string]error) error {
	switch res {
	case "ok":
		return nil
	case "missing":
		return sentinel.ErrNotFound
	}
	if special != nil {
		if mapped, ok := special[res]; ok {
			return mapped
		}
	}
	return sentinel.ErrInvalidState
}

func toRedisRequest(req VerificationRequest) redisRequest {
	out := redisRequest{
		ID:              req.ID,
		CredentialID:    req.CredentialID,
		VerifierName:    req.VerifierName,
		VerifierDomain:  req.VerifierDomain,
		Purpose:         req.Purpose,
		Policy:          req.Policy,
		RequestedFields: req.RequestedFields,
		Nonce:           req.Nonce,
		Status:          string(req.Status),
		CreatedAt:       req.CreatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:       req.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	if req.ApprovedAt != nil {
		out.ApprovedAt = req.ApprovedAt.UTC().Format(time.RFC3339Nano)
	}
	if req.ConsumedAt != nil {
		out.ConsumedAt = req.ConsumedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func parseRedisRequest(raw []byte) (VerificationRequest, error) {
	var in redisRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return VerificationRequest{}, fmt.Errorf("unmarshal verification request: %w", err)
	}
	req := VerificationRequest{
		ID:              in.ID,
		CredentialID:    in.CredentialID,
		VerifierName:    in.VerifierName,
		VerifierDomain:  in.VerifierDomain,
		Purpose:         in.Purpose,
		Policy:          in.Policy,
		RequestedFields: in.RequestedFields,
		Nonce:           in.Nonce,
		Status:          RequestStatus(in.Status),
	}
	var err error
	if req.CreatedAt, err = parseRedisTime(in.CreatedAt); err != nil {
		return VerificationRequest{}, err
	}
	if req.ExpiresAt, err = parseRedisTime(in.ExpiresAt); err != nil {
		return VerificationRequest{}, err
	}
	if in.ApprovedAt != "" {
		at, err := parseRedisTime(in.ApprovedAt)
		if err != nil {
			return VerificationRequest{}, err
		}
		req.ApprovedAt = &at
	}
	if in.ConsumedAt != "" {
		at, err := parseRedisTime(in.ConsumedAt)
		if err != nil {
			return VerificationRequest{}, err
		}
		req.ConsumedAt = &at
	}
	return req, nil
}

func parseRedisTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time: %w", err)
	}
	return t, nil
}
