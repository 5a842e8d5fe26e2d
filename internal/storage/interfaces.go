package storage

import (
	"context"
	"time"

	"defi-risk-lab/internal/domain"
)

// SnapshotStore archives pipeline runs. Snapshots are append-only.
type SnapshotStore interface {
	// Insert adds a snapshot with its records. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, s *domain.Snapshot) error

	// GetByID retrieves a snapshot with records in input order. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Snapshot, error)

	// GetLatest retrieves the newest snapshot by created_at. Returns ErrNotFound when empty.
	GetLatest(ctx context.Context) (*domain.Snapshot, error)

	// List returns up to limit snapshot headers (Records nil), newest first.
	List(ctx context.Context, limit int) ([]*domain.Snapshot, error)
}

// ScoredRecordStore keeps per-protocol score history across runs.
type ScoredRecordStore interface {
	// InsertBulk adds all records of one run. Returns ErrDuplicateKey if run_id exists.
	InsertBulk(ctx context.Context, runID string, createdAt time.Time, records []domain.ScoredRecord) error

	// GetByRunID retrieves a run's records in input order.
	GetByRunID(ctx context.Context, runID string) ([]domain.ScoredRecord, error)

	// GetHistory retrieves up to limit entries for a protocol name, newest first.
	GetHistory(ctx context.Context, name string, limit int) ([]domain.ScoreHistoryEntry, error)
}
