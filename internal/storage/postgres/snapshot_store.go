package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/observability"
	"defi-risk-lab/internal/storage"
)

const dbName = "postgres"

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Snapshot headers live in risk_snapshots, records in risk_snapshot_records.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot and its records in one transaction. Returns ErrDuplicateKey if run_id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.Snapshot) (err error) {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	start := time.Now()
	defer func() { observability.RecordDBQuery(dbName, "insert_snapshot", time.Since(start), err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var blockNumber *int64
	var blockHash *string
	var blockTime *time.Time
	if snap.Block != nil {
		n := int64(snap.Block.Number)
		blockNumber = &n
		blockHash = &snap.Block.Hash
		blockTime = &snap.Block.Timestamp
	}

	query := `
		INSERT INTO risk_snapshots (
			run_id, created_at, accuracy, evaluation, dropped, record_count,
			block_number, block_hash, block_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		snap.RunID,
		snap.CreatedAt,
		snap.Accuracy,
		snap.Evaluation,
		snap.Dropped,
		len(snap.Records),
		blockNumber,
		blockHash,
		blockTime,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}

	rows := make([][]any, len(snap.Records))
	for i, r := range snap.Records {
		rows[i] = []any{
			snap.RunID, i, r.Name, r.MarketCap, r.TotalVolume, r.Volatility, r.RiskScore, string(r.RiskLabel),
		}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"risk_snapshot_records"},
		[]string{"run_id", "position", "name", "market_cap", "total_volume", "volatility", "risk_score", "risk_label"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy snapshot records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot with records. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(ctx context.Context, runID string) (*domain.Snapshot, error) {
	query := `
		SELECT run_id, created_at, accuracy, evaluation, dropped, block_number, block_hash, block_time
		FROM risk_snapshots
		WHERE run_id = $1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}

	records, err := s.getRecords(ctx, runID)
	if err != nil {
		return nil, err
	}
	snap.Records = records
	return snap, nil
}

// GetLatest retrieves the newest snapshot. Returns ErrNotFound when empty.
func (s *SnapshotStore) GetLatest(ctx context.Context) (*domain.Snapshot, error) {
	query := `
		SELECT run_id
		FROM risk_snapshots
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`

	var runID string
	if err := s.pool.QueryRow(ctx, query).Scan(&runID); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return s.GetByID(ctx, runID)
}

// List returns up to limit snapshot headers, newest first.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]*domain.Snapshot, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, created_at, accuracy, evaluation, dropped, block_number, block_hash, block_time
		FROM risk_snapshots
		ORDER BY created_at DESC, run_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

func (s *SnapshotStore) getRecords(ctx context.Context, runID string) ([]domain.ScoredRecord, error) {
	query := `
		SELECT name, market_cap, total_volume, volatility, risk_score, risk_label
		FROM risk_snapshot_records
		WHERE run_id = $1
		ORDER BY position ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot records: %w", err)
	}
	defer rows.Close()

	records := []domain.ScoredRecord{}
	for rows.Next() {
		var r domain.ScoredRecord
		var label string
		if err := rows.Scan(&r.Name, &r.MarketCap, &r.TotalVolume, &r.Volatility, &r.RiskScore, &label); err != nil {
			return nil, fmt.Errorf("scan snapshot record: %w", err)
		}
		r.RiskLabel = domain.RiskLabel(label)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot records: %w", err)
	}
	return records, nil
}

// scanSnapshot scans a snapshot header from a row.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var blockNumber *int64
	var blockHash *string
	var blockTime *time.Time

	err := row.Scan(
		&snap.RunID,
		&snap.CreatedAt,
		&snap.Accuracy,
		&snap.Evaluation,
		&snap.Dropped,
		&blockNumber,
		&blockHash,
		&blockTime,
	)
	if err != nil {
		return nil, err
	}

	snap.CreatedAt = snap.CreatedAt.UTC()
	if blockNumber != nil {
		snap.Block = &domain.BlockInfo{Number: uint64(*blockNumber)}
		if blockHash != nil {
			snap.Block.Hash = *blockHash
		}
		if blockTime != nil {
			snap.Block.Timestamp = blockTime.UTC()
		}
	}
	return &snap, nil
}
