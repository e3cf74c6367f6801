package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ztkent/sky-quality-meter/tsl2591"
)

// SQLiteStore keeps the seed as the single row of the seed table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context) (tsl2591.Config, error) {
	var gain, integrationMs int
	err := s.db.QueryRowContext(ctx, `SELECT gain, integration_ms FROM seed WHERE id = 1`).Scan(&gain, &integrationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return tsl2591.Config{}, ErrNotFound
	}
	if err != nil {
		return tsl2591.Config{}, fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	if gain < 0 || gain > 0xFF {
		return tsl2591.Config{}, fmt.Errorf("%w: gain %d", ErrSeedCorrupt, gain)
	}
	return Seed{Gain: tsl2591.Gain(gain), IntegrationMs: integrationMs}.Config()
}

func (s *SQLiteStore) Save(ctx context.Context, config tsl2591.Config) error {
	if !config.Valid() {
		return fmt.Errorf("refusing to save invalid configuration %s", config)
	}
	rec := FromConfig(config)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO seed (id, gain, integration_ms, updated_at)
	VALUES (1, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		gain = excluded.gain,
		integration_ms = excluded.integration_ms,
		updated_at = excluded.updated_at`,
		int(rec.Gain), rec.IntegrationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save seed: %w", err)
	}
	return nil
}
