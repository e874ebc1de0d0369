package storage

import (
	"context"
	"time"
)

// Markers exposes the markers table as a durable flag store for the dedup
// ledger.
type Markers struct {
	repo *SQLiteRepository
	now  func() time.Time
}

func (r *SQLiteRepository) Markers() *Markers {
	return &Markers{repo: r, now: time.Now}
}

func (m *Markers) Has(ctx context.Context, key string) (bool, error) {
	var n int
	if err := m.repo.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM markers WHERE key = ?`, key).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *Markers) Set(ctx context.Context, key string) error {
	_, err := m.repo.db.ExecContext(ctx, `INSERT OR IGNORE INTO markers (key, value, created_at) VALUES (?, 'true', ?)`,
		key, mustTime(m.now()))
	return err
}
