package cartcache

import (
	"context"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// SnapshotStore persists one cart snapshot per session. It is a
// degraded-mode cache, never the authority: Load returns (nil, nil) for
// absent or corrupt snapshots so the caller re-fetches from the backend.
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, cart models.Cart) error
	Load(ctx context.Context, sessionID string) (*models.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

// Chain combines snapshot stores as an ordered fallback list.
// Selection rule: Save writes to every store best-effort, Load returns
// the first store's answer (first hit wins, later stores are only
// consulted when an earlier one fails or has nothing), Clear clears all.
// Chain itself never fails outward; store errors are logged.
type Chain struct {
	stores []SnapshotStore
	logger *zap.Logger
}

// NewChain builds a fallback chain in priority order
func NewChain(stores ...SnapshotStore) *Chain {
	return &Chain{stores: stores, logger: util.GetLogger()}
}

// Save writes the snapshot to every store, logging failures
func (c *Chain) Save(ctx context.Context, sessionID string, cart models.Cart) error {
	for _, s := range c.stores {
		if err := s.Save(ctx, sessionID, cart); err != nil {
			c.logger.Warn("Snapshot save failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return nil
}

// Load returns the first snapshot found, or nil when no store has one
func (c *Chain) Load(ctx context.Context, sessionID string) (*models.Cart, error) {
	for _, s := range c.stores {
		cart, err := s.Load(ctx, sessionID)
		if err != nil {
			c.logger.Warn("Snapshot load failed, trying next store",
				zap.String("session_id", sessionID),
				zap.Error(err))
			continue
		}
		if cart != nil {
			return cart, nil
		}
	}
	return nil, nil
}

// Clear removes the snapshot from every store, logging failures
func (c *Chain) Clear(ctx context.Context, sessionID string) error {
	for _, s := range c.stores {
		if err := s.Clear(ctx, sessionID); err != nil {
			c.logger.Warn("Snapshot clear failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return nil
}
