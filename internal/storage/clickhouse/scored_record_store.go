package clickhouse

import (
	"context"
	"fmt"
	"time"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/observability"
	"defi-risk-lab/internal/storage"
)

const dbName = "clickhouse"

// ScoredRecordStore implements storage.ScoredRecordStore using ClickHouse.
type ScoredRecordStore struct {
	conn *Conn
}

// NewScoredRecordStore creates a new ScoredRecordStore.
func NewScoredRecordStore(conn *Conn) *ScoredRecordStore {
	return &ScoredRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoredRecordStore = (*ScoredRecordStore)(nil)

// InsertBulk adds all records of one run. Returns ErrDuplicateKey if run_id exists.
func (s *ScoredRecordStore) InsertBulk(ctx context.Context, runID string, createdAt time.Time, records []domain.ScoredRecord) (err error) {
	if err := storage.ValidateRunID(runID); err != nil {
		return err
	}

	start := time.Now()
	defer func() { observability.RecordDBQuery(dbName, "insert_scored_records", time.Since(start), err) }()

	// MergeTree does not enforce uniqueness; keep append-only semantics explicitly
	exists, err := s.exists(ctx, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO scored_records (
			run_id, created_at, position, name,
			market_cap, total_volume, volatility, risk_score, risk_label
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i, r := range records {
		err = batch.Append(
			runID, createdAt.UTC(), uint32(i), r.Name,
			r.MarketCap, r.TotalVolume, r.Volatility, r.RiskScore, string(r.RiskLabel),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves a run's records in input order.
func (s *ScoredRecordStore) GetByRunID(ctx context.Context, runID string) ([]domain.ScoredRecord, error) {
	query := `
		SELECT name, market_cap, total_volume, volatility, risk_score, risk_label
		FROM scored_records
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query scored records: %w", err)
	}
	defer rows.Close()

	records := []domain.ScoredRecord{}
	for rows.Next() {
		var r domain.ScoredRecord
		var label string
		if err := rows.Scan(&r.Name, &r.MarketCap, &r.TotalVolume, &r.Volatility, &r.RiskScore, &label); err != nil {
			return nil, fmt.Errorf("scan scored record: %w", err)
		}
		r.RiskLabel = domain.RiskLabel(label)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored records: %w", err)
	}
	return records, nil
}

// GetHistory retrieves up to limit entries for name, newest first.
func (s *ScoredRecordStore) GetHistory(ctx context.Context, name string, limit int) ([]domain.ScoreHistoryEntry, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, created_at, name, market_cap, total_volume, volatility, risk_score, risk_label
		FROM scored_records
		WHERE name = ?
		ORDER BY created_at DESC, run_id DESC, position ASC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []domain.ScoreHistoryEntry
	for rows.Next() {
		var e domain.ScoreHistoryEntry
		var label string
		err := rows.Scan(
			&e.RunID, &e.CreatedAt,
			&e.Record.Name, &e.Record.MarketCap, &e.Record.TotalVolume, &e.Record.Volatility,
			&e.Record.RiskScore, &label,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.Record.RiskLabel = domain.RiskLabel(label)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return result, nil
}

func (s *ScoredRecordStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM scored_records WHERE run_id = ?`, runID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
