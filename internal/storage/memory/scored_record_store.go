package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/storage"
)

type scoredRun struct {
	createdAt time.Time
	records   []domain.ScoredRecord
}

// ScoredRecordStore is an in-memory implementation of storage.ScoredRecordStore.
type ScoredRecordStore struct {
	mu   sync.RWMutex
	runs map[string]scoredRun // keyed by run_id
}

// NewScoredRecordStore creates a new in-memory scored record store.
func NewScoredRecordStore() *ScoredRecordStore {
	return &ScoredRecordStore{
		runs: make(map[string]scoredRun),
	}
}

// Compile-time interface check.
var _ storage.ScoredRecordStore = (*ScoredRecordStore)(nil)

// InsertBulk adds all records of one run. Returns ErrDuplicateKey if run_id exists.
func (s *ScoredRecordStore) InsertBulk(_ context.Context, runID string, createdAt time.Time, records []domain.ScoredRecord) error {
	if err := storage.ValidateRunID(runID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := make([]domain.ScoredRecord, len(records))
	copy(cp, records)
	s.runs[runID] = scoredRun{createdAt: createdAt, records: cp}
	return nil
}

// GetByRunID retrieves a run's records in input order. Unknown runs yield an empty slice.
func (s *ScoredRecordStore) GetByRunID(_ context.Context, runID string) ([]domain.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return []domain.ScoredRecord{}, nil
	}
	cp := make([]domain.ScoredRecord, len(run.records))
	copy(cp, run.records)
	return cp, nil
}

// GetHistory retrieves up to limit entries for name, newest first.
func (s *ScoredRecordStore) GetHistory(_ context.Context, name string, limit int) ([]domain.ScoreHistoryEntry, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Runs by created_at DESC, run_id DESC; records keep input order within a run
	runIDs := make([]string, 0, len(s.runs))
	for runID := range s.runs {
		runIDs = append(runIDs, runID)
	}
	sort.Slice(runIDs, func(i, j int) bool {
		a, b := s.runs[runIDs[i]], s.runs[runIDs[j]]
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.After(b.createdAt)
		}
		return runIDs[i] > runIDs[j]
	})

	var result []domain.ScoreHistoryEntry
	for _, runID := range runIDs {
		run := s.runs[runID]
		for _, r := range run.records {
			if r.Name == name {
				result = append(result, domain.ScoreHistoryEntry{RunID: runID, CreatedAt: run.createdAt, Record: r})
			}
		}
	}

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
