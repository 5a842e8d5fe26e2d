package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/storage"
	"defi-risk-lab/internal/storage/postgres"
)

func testSnapshot(runID string, at time.Time, block *domain.BlockInfo) *domain.Snapshot {
	return &domain.Snapshot{
		RunID:      runID,
		CreatedAt:  at,
		Accuracy:   0.75,
		Evaluation: domain.EvaluationHoldout,
		Block:      block,
		Dropped:    1,
		Records: []domain.ScoredRecord{
			{
				ProtocolRecord: domain.ProtocolRecord{Name: "Uniswap", MarketCap: 5e9, TotalVolume: 1.5e8, Volatility: 0.045},
				RiskScore:      25.5,
				RiskLabel:      domain.RiskLow,
			},
			{
				ProtocolRecord: domain.ProtocolRecord{Name: "Tiny", MarketCap: 1e4, TotalVolume: 9e3, Volatility: 0.9},
				RiskScore:      58,
				RiskLabel:      domain.RiskMedium,
			},
		},
	}
}

func TestSnapshotStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSnapshotStore(pool)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	block := &domain.BlockInfo{Number: 19_000_000, Hash: "0xdeadbeef", Timestamp: at.Add(-12 * time.Second)}
	snap := testSnapshot("run-1", at, block)

	require.NoError(t, store.Insert(ctx, snap))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, snap.RunID, got.RunID)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, snap.Accuracy, got.Accuracy)
	assert.Equal(t, snap.Evaluation, got.Evaluation)
	assert.Equal(t, snap.Dropped, got.Dropped)
	require.NotNil(t, got.Block)
	assert.Equal(t, block.Number, got.Block.Number)
	assert.Equal(t, block.Hash, got.Block.Hash)
	assert.Equal(t, snap.Records, got.Records)
}

func TestSnapshotStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSnapshotStore(pool)
	ctx := context.Background()

	snap := testSnapshot("run-dup", time.Now().UTC(), nil)
	require.NoError(t, store.Insert(ctx, snap))

	err := store.Insert(ctx, snap)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSnapshotStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSnapshotStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetLatest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_LatestAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSnapshotStore(pool)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, store.Insert(ctx, testSnapshot(id, base.Add(time.Duration(i)*time.Hour), nil)))
	}

	latest, err := store.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-c", latest.RunID)
	assert.Nil(t, latest.Block)
	assert.Len(t, latest.Records, 2)

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-c", list[0].RunID)
	assert.Equal(t, "run-b", list[1].RunID)
	assert.Nil(t, list[0].Records)

	_, err = store.List(ctx, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
