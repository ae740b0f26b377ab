package cartcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore is the durable fallback snapshot store. It only has to
// outlive a Redis outage, so the schema is a single session-keyed
// jsonb payload.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore connects to the database and ensures the snapshot table
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, logger: util.GetLogger()}
	if err := store.ensureSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cart_snapshots (
			session_id TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure cart_snapshots table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Save upserts the session's cart snapshot
func (s *PostgresStore) Save(ctx context.Context, sessionID string, cart models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (session_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		sessionID, raw)
	return err
}

// Load returns the stored snapshot, or nil when missing or corrupt
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*models.Cart, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw,
		"SELECT payload FROM cart_snapshots WHERE session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		s.logger.Warn("Corrupt cart snapshot row, treating as absent",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, nil
	}
	cart.Recalculate()
	return &cart, nil
}

// Clear removes the session's snapshot. Idempotent.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_snapshots WHERE session_id = $1", sessionID)
	return err
}

// PurgeOlderThan deletes snapshots untouched for longer than the
// retention window. Called by the janitor.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_snapshots WHERE updated_at < NOW() - $1::interval",
		fmt.Sprintf("%d seconds", int(retention.Seconds())))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
