package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/reporting"
	"defi-risk-lab/internal/storage"
	"defi-risk-lab/internal/storage/memory"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func sampleRaw() []domain.RawRecord {
	return []domain.RawRecord{
		{"name": "A", "market_cap": 1_000_000.0, "total_volume": 500_000.0, "volatility": 0.1},
		{"name": "B", "market_cap": "10,000", "total_volume": 9000, "volatility": "0.9"},
		{"name": "C", "market_cap": "N/A", "total_volume": 1, "volatility": 0.5},
		{"name": "D", "market_cap": 0, "total_volume": 100, "volatility": 0.2},
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	snaps []*domain.Snapshot
	hook  func()
}

func (n *recordingNotifier) Publish(snap *domain.Snapshot) {
	n.mu.Lock()
	n.snaps = append(n.snaps, snap)
	n.mu.Unlock()
	if n.hook != nil {
		n.hook()
	}
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.snaps)
}

type switchSource struct {
	mu  sync.Mutex
	err error
}

func (s *switchSource) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return (&datasource.Static{Records: sampleRaw()}).Fetch(ctx)
}

type blockingSource struct{}

func (blockingSource) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestRefresher(t *testing.T, src datasource.DataSource, opts Options) *Refresher {
	t.Helper()
	opts.Orchestrator = orchestrator.New(orchestrator.Options{Source: src})
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	r, err := NewRefresher(opts)
	require.NoError(t, err)
	return r
}

func TestNewRefresher_RequiresOrchestrator(t *testing.T) {
	_, err := NewRefresher(Options{})
	assert.ErrorIs(t, err, ErrNoOrchestrator)
}

func TestRefresher_Refresh(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	history := memory.NewScoredRecordStore()
	notifier := &recordingNotifier{}

	r := newTestRefresher(t, &switchSource{}, Options{
		Snapshots: snapshots,
		History:   history,
		Notifier:  notifier,
	})
	assert.Nil(t, r.Current())

	state, err := r.Refresh(ctx)
	require.NoError(t, err)

	assert.Same(t, state, r.Current())
	snap := state.Snapshot
	assert.Len(t, snap.RunID, 64)
	assert.Equal(t, fixedNow, snap.CreatedAt)
	assert.Equal(t, 1, snap.Dropped)
	assert.Equal(t, domain.EvaluationSelf, snap.Evaluation)
	assert.Equal(t, 1.0, snap.Accuracy)
	require.Len(t, snap.Records, 3)
	assert.Equal(t, 3, state.Summary.Count)
	require.NotNil(t, state.Model)
	require.NotNil(t, state.Scorer)

	stored, err := snapshots.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, stored.RunID)
	assert.Equal(t, snap.Records, stored.Records)

	rows, err := history.GetByRunID(ctx, snap.RunID)
	require.NoError(t, err)
	assert.Equal(t, snap.Records, rows)

	assert.Equal(t, 1, notifier.count())
}

func TestRefresher_FailureKeepsPreviousState(t *testing.T) {
	src := &switchSource{}
	notifier := &recordingNotifier{}
	r := newTestRefresher(t, src, Options{Notifier: notifier})

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)

	src.mu.Lock()
	src.err = errors.New("upstream down")
	src.mu.Unlock()

	_, err = r.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Same(t, first, r.Current())
	assert.Equal(t, 1, notifier.count())
}

func TestRefresher_DuplicateRunRejected(t *testing.T) {
	snapshots := memory.NewSnapshotStore()
	r := newTestRefresher(t, &switchSource{}, Options{Snapshots: snapshots})

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)

	// Same clock and same records hash to the same run id.
	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Same(t, first, r.Current())
}

func TestRefresher_Timeout(t *testing.T) {
	r := newTestRefresher(t, blockingSource{}, Options{Timeout: 20 * time.Millisecond})

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, r.Current())
}

func TestRefresher_WritesReports(t *testing.T) {
	dir := t.TempDir()
	gen := reporting.NewGenerator(dir).WithClock(func() time.Time { return fixedNow })
	r := newTestRefresher(t, &switchSource{}, Options{Reports: gen})

	state, err := r.Refresh(context.Background())
	require.NoError(t, err)

	md, err := os.ReadFile(filepath.Join(dir, reporting.MarkdownFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), state.Snapshot.RunID)
	assert.FileExists(t, filepath.Join(dir, reporting.CSVFile))
}

func TestRefresher_Restore(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()

	writer := newTestRefresher(t, &switchSource{}, Options{Snapshots: snapshots})
	written, err := writer.Refresh(ctx)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	reader := newTestRefresher(t, &switchSource{err: errors.New("unused")}, Options{
		Snapshots: snapshots,
		Notifier:  notifier,
	})
	require.NoError(t, reader.Restore(ctx))

	state := reader.Current()
	require.NotNil(t, state)
	assert.Equal(t, written.Snapshot.RunID, state.Snapshot.RunID)
	assert.Equal(t, written.Snapshot.Records, state.Snapshot.Records)

	labels, err := state.Model.Predict(state.Snapshot.Table().Features())
	require.NoError(t, err)
	assert.Equal(t, state.Snapshot.Table().Labels(), labels)
	assert.Equal(t, 1, notifier.count())
}

func TestRefresher_RestoreEmptyArchive(t *testing.T) {
	r := newTestRefresher(t, &switchSource{}, Options{Snapshots: memory.NewSnapshotStore()})
	require.NoError(t, r.Restore(context.Background()))
	assert.Nil(t, r.Current())

	noArchive := newTestRefresher(t, &switchSource{}, Options{})
	require.NoError(t, noArchive.Restore(context.Background()))
}

func TestRefresher_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &recordingNotifier{hook: cancel}
	r := newTestRefresher(t, &switchSource{}, Options{Notifier: notifier})

	done := make(chan error, 1)
	go func() { done <- r.Start(ctx, time.Hour) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.Equal(t, 1, notifier.count())
	assert.NotNil(t, r.Current())
}

func TestRefresher_StartRejectsBadInterval(t *testing.T) {
	r := newTestRefresher(t, &switchSource{}, Options{})
	assert.Error(t, r.Start(context.Background(), 0))
}
