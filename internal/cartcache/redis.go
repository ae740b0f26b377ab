package cartcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Versioned key prefixes. Bump the version when the serialized shape
// changes so stale snapshots read as absent instead of corrupt.
const (
	cartKeyPrefix    = "cart:v1:"
	abandonKeyPrefix = "abandon:v1:"
	draftKeyPrefix   = "draft:v1:"
)

// RedisStore is the fast-path snapshot store. It also holds the
// abandoned-cart dedup markers and checkout drafts, both of which need
// TTL semantics.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
// retention bounds how long an untouched cart snapshot survives.
func NewRedisStore(addr, password string, db int, retention time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, retention: retention, logger: util.GetLogger()}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Save overwrites the session's cart snapshot
func (s *RedisStore) Save(ctx context.Context, sessionID string, cart models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return s.rdb.Set(ctx, cartKeyPrefix+sessionID, raw, s.retention).Err()
}

// Load returns the stored snapshot, or nil when missing or corrupt
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*models.Cart, error) {
	raw, err := s.rdb.Get(ctx, cartKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		s.logger.Warn("Corrupt cart snapshot, treating as absent",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, nil
	}
	cart.Recalculate()
	return &cart, nil
}

// Clear removes the session's snapshot. Idempotent.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, cartKeyPrefix+sessionID).Err()
}

// AcquireAbandonMarker sets the dedup marker for a phone if none exists
// within the cooldown window. Returns true when this caller won the
// marker and may send the report.
func (s *RedisStore) AcquireAbandonMarker(ctx context.Context, marker models.AbandonMarker, cooldown time.Duration) (bool, error) {
	raw, err := json.Marshal(marker)
	if err != nil {
		return false, fmt.Errorf("marshal abandon marker: %w", err)
	}
	return s.rdb.SetNX(ctx, abandonKeyPrefix+marker.Phone, raw, cooldown).Result()
}

// ClearAbandonMarker makes the phone eligible for a fresh report,
// used when checkout completes
func (s *RedisStore) ClearAbandonMarker(ctx context.Context, phone string) error {
	return s.rdb.Del(ctx, abandonKeyPrefix+phone).Err()
}

// SaveDraft stores an in-progress checkout form snapshot with a fixed expiry
func (s *RedisStore) SaveDraft(ctx context.Context, sessionID string, draft models.CheckoutDraft, ttl time.Duration) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal checkout draft: %w", err)
	}
	return s.rdb.Set(ctx, draftKeyPrefix+sessionID, raw, ttl).Err()
}

// LoadDraft returns the stored draft, or nil when missing, expired or corrupt
func (s *RedisStore) LoadDraft(ctx context.Context, sessionID string) (*models.CheckoutDraft, error) {
	raw, err := s.rdb.Get(ctx, draftKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var draft models.CheckoutDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		s.logger.Warn("Corrupt checkout draft, treating as absent",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, nil
	}
	return &draft, nil
}

// ClearDraft removes the checkout draft. Idempotent.
func (s *RedisStore) ClearDraft(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, draftKeyPrefix+sessionID).Err()
}
