package memory

import (
	"context"
	"sort"
	"sync"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Snapshot // keyed by run_id
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*domain.Snapshot),
	}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if run_id exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.Snapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	s.data[snap.RunID] = copySnapshot(snap, true)
	return nil
}

// GetByID retrieves a snapshot by run id. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(_ context.Context, runID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(snap, true), nil
}

// GetLatest retrieves the newest snapshot. Returns ErrNotFound when empty.
func (s *SnapshotStore) GetLatest(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	if len(sorted) == 0 {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(sorted[0], true), nil
}

// List returns up to limit snapshot headers, newest first.
func (s *SnapshotStore) List(_ context.Context, limit int) ([]*domain.Snapshot, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	result := make([]*domain.Snapshot, len(sorted))
	for i, snap := range sorted {
		result[i] = copySnapshot(snap, false)
	}
	return result, nil
}

// sortedLocked orders snapshots by created_at DESC, run_id DESC.
func (s *SnapshotStore) sortedLocked() []*domain.Snapshot {
	result := make([]*domain.Snapshot, 0, len(s.data))
	for _, snap := range s.data {
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].RunID > result[j].RunID
	})
	return result
}

func copySnapshot(snap *domain.Snapshot, withRecords bool) *domain.Snapshot {
	cp := *snap
	if snap.Block != nil {
		block := *snap.Block
		cp.Block = &block
	}
	cp.Records = nil
	if withRecords {
		cp.Records = make([]domain.ScoredRecord, len(snap.Records))
		copy(cp.Records, snap.Records)
	}
	return &cp
}
