package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout for the claim store.
const (
	redisKeyClaim    = "pod:claims:claim:"    // + claim ID -> JSON claim
	redisKeyEmail    = "pod:claims:email:"    // + claim ID -> client email
	redisKeyTracking = "pod:claims:tracking:" // + tracking number -> claim ID
	redisKeyPending  = "pod:claims:pending"   // ZSET claim ID scored by created_at
	redisKeyRetry    = "pod:claims:retry"     // ZSET claim ID scored by last_retry_at
	redisKeyAlerts   = "pod:claims:alerts"    // LIST of JSON bypass alerts
)

// RedisStore is a Redis-backed Store. Claims are stored as JSON blobs with
// secondary indexes for tracking-number lookup and batch selection.
//
// The batch jobs are the only writers of the POD fields and run under a
// scheduler lease, so claim updates use plain read-modify-write.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed claim store.
// Panics if client is nil.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

// SaveClaim inserts or replaces a claim and refreshes its indexes.
func (s *RedisStore) SaveClaim(ctx context.Context, claim Claim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, claimKey(claim.ID), data, 0)
	if claim.TrackingNumber != "" {
		pipe.Set(ctx, redisKeyTracking+claim.TrackingNumber, claim.ID, 0)
	}
	s.indexClaim(ctx, pipe, &claim)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

// SetClientEmail stores the notification address for a claim.
func (s *RedisStore) SetClientEmail(ctx context.Context, claimID int64, email string) error {
	if err := s.client.Set(ctx, redisKeyEmail+strconv.FormatInt(claimID, 10), email, 0).Err(); err != nil {
		return fmt.Errorf("failed to set client email: %w", err)
	}
	return nil
}

// GetClaim loads one claim by ID.
func (s *RedisStore) GetClaim(ctx context.Context, claimID int64) (*Claim, error) {
	data, err := s.client.Get(ctx, claimKey(claimID)).Bytes()
	if err == redis.Nil {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	var claim Claim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claim: %w", err)
	}
	return &claim, nil
}

// GetPendingPODClaims returns claims awaiting their first POD fetch,
// oldest first.
func (s *RedisStore) GetPendingPODClaims(ctx context.Context, limit int) ([]Claim, error) {
	return s.selectFromIndex(ctx, redisKeyPending, limit, func(c *Claim) bool {
		return c.PODFetchStatus == PODFetchPending && c.TrackingNumber != ""
	})
}

// GetRetryEligibleClaims returns failed claims still inside the retry
// budget. Never-retried claims sort first (score zero), then oldest
// attempt first.
func (s *RedisStore) GetRetryEligibleClaims(ctx context.Context, maxRetries, limit int) ([]Claim, error) {
	return s.selectFromIndex(ctx, redisKeyRetry, limit, func(c *Claim) bool {
		return c.PODFetchStatus == PODFetchFailed && c.TrackingNumber != "" && c.PODRetryCount < maxRetries
	})
}

// selectFromIndex walks a selection ZSET in score order, loading claims and
// keeping those the filter accepts, up to limit. Index entries whose claim
// no longer matches are left in place; the filter is the source of truth.
func (s *RedisStore) selectFromIndex(ctx context.Context, key string, limit int, keep func(*Claim) bool) ([]Claim, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim index: %w", err)
	}

	var result []Claim
	for _, id := range ids {
		claimID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		claim, err := s.GetClaim(ctx, claimID)
		if err == ErrClaimNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !keep(claim) {
			continue
		}
		result = append(result, *claim)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// UpdateClaimPODFields applies a partial POD update. Nil pointer fields
// leave the stored value untouched.
func (s *RedisStore) UpdateClaimPODFields(ctx context.Context, claimID int64, update PODUpdate) error {
	claim, err := s.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}

	if update.FetchStatus != "" {
		claim.PODFetchStatus = update.FetchStatus
	}
	if update.PODURL != nil {
		claim.PODURL = *update.PODURL
	}
	if update.FetchError != nil {
		claim.PODFetchError = *update.FetchError
	}
	if update.RecipientName != nil {
		claim.PODRecipientName = *update.RecipientName
	}
	if update.SignatureURL != nil {
		claim.PODSignatureURL = *update.SignatureURL
	}
	if update.RetryCount != nil {
		claim.PODRetryCount = *update.RetryCount
	}
	if update.LastRetryAt != nil {
		t := *update.LastRetryAt
		claim.PODLastRetryAt = &t
	}

	return s.storeClaim(ctx, claim)
}

// UpdateClaimStatus transitions the claim status. An empty automation
// status leaves the stored value untouched.
func (s *RedisStore) UpdateClaimStatus(ctx context.Context, claimID int64, status Status, automation AutomationStatus) error {
	claim, err := s.GetClaim(ctx, claimID)
	if err != nil {
		return err
	}

	claim.Status = status
	if automation != "" {
		claim.AutomationStatus = automation
	}

	return s.storeClaim(ctx, claim)
}

// FindByTracking looks a claim up by tracking number.
func (s *RedisStore) FindByTracking(ctx context.Context, trackingNumber string) (*Claim, error) {
	id, err := s.client.Get(ctx, redisKeyTracking+trackingNumber).Result()
	if err == redis.Nil {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tracking number: %w", err)
	}

	claimID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt tracking index entry %q: %w", id, err)
	}
	return s.GetClaim(ctx, claimID)
}

// GetClientEmail returns the notification address for a claim.
func (s *RedisStore) GetClientEmail(ctx context.Context, claimID int64) (string, error) {
	email, err := s.client.Get(ctx, redisKeyEmail+strconv.FormatInt(claimID, 10)).Result()
	if err == redis.Nil {
		return "", ErrClaimNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get client email: %w", err)
	}
	return email, nil
}

func (s *RedisStore) storeClaim(ctx context.Context, claim *Claim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, claimKey(claim.ID), data, 0)
	s.indexClaim(ctx, pipe, claim)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	return nil
}

// indexClaim keeps the selection ZSETs in sync with the claim state.
func (s *RedisStore) indexClaim(ctx context.Context, pipe redis.Pipeliner, claim *Claim) {
	member := strconv.FormatInt(claim.ID, 10)

	if claim.PODFetchStatus == PODFetchPending {
		pipe.ZAdd(ctx, redisKeyPending, redis.Z{Score: float64(claim.CreatedAt.Unix()), Member: member})
	} else {
		pipe.ZRem(ctx, redisKeyPending, member)
	}

	if claim.PODFetchStatus == PODFetchFailed {
		score := float64(0)
		if claim.PODLastRetryAt != nil {
			score = float64(claim.PODLastRetryAt.Unix())
		}
		pipe.ZAdd(ctx, redisKeyRetry, redis.Z{Score: score, Member: member})
	} else {
		pipe.ZRem(ctx, redisKeyRetry, member)
	}
}

func claimKey(claimID int64) string {
	return redisKeyClaim + strconv.FormatInt(claimID, 10)
}

// RedisAlertSink pushes bypass alerts onto a Redis list for the claims
// back office to drain.
type RedisAlertSink struct {
	client *redis.Client
}

// NewRedisAlertSink creates a Redis-backed alert sink.
// Panics if client is nil.
func NewRedisAlertSink(client *redis.Client) *RedisAlertSink {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisAlertSink{client: client}
}

// RaiseBypassAlert appends the alert to the alert queue.
func (s *RedisAlertSink) RaiseBypassAlert(ctx context.Context, alert BypassAlert) error {
	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = time.Now().UTC()
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal bypass alert: %w", err)
	}
	if err := s.client.RPush(ctx, redisKeyAlerts, data).Err(); err != nil {
		return fmt.Errorf("failed to queue bypass alert: %w", err)
	}
	return nil
}
