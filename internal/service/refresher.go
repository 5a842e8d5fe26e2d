// Package service runs the pipeline on a schedule and holds the state served by the dashboard.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/idhash"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/metrics"
	"defi-risk-lab/internal/observability"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/reporting"
	"defi-risk-lab/internal/scoring"
	"defi-risk-lab/internal/storage"
)

// DefaultTimeout bounds one refresh when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrNoOrchestrator is returned by NewRefresher without an orchestrator.
var ErrNoOrchestrator = errors.New("orchestrator is required")

// State is one consistent view of the latest successful run.
// A State is never mutated after it is published.
type State struct {
	Snapshot *domain.Snapshot
	Summary  *metrics.Summary
	Model    *classifier.Model
	Scorer   *scoring.Scorer
}

// Notifier is told about every new snapshot.
type Notifier interface {
	Publish(snap *domain.Snapshot)
}

// Options for creating Refresher.
type Options struct {
	Orchestrator *orchestrator.Orchestrator

	// Archive; both optional
	Snapshots storage.SnapshotStore
	History   storage.ScoredRecordStore

	Notifier Notifier             // optional
	Reports  *reporting.Generator // optional, writes report files after each run

	Timeout time.Duration
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
	Now     func() time.Time // Injectable clock
}

// Refresher runs the pipeline and swaps the current State on success.
type Refresher struct {
	orch      *orchestrator.Orchestrator
	snapshots storage.SnapshotStore
	history   storage.ScoredRecordStore
	notifier  Notifier
	reports   *reporting.Generator
	timeout   time.Duration
	logger    logrus.FieldLogger
	metrics   *observability.Metrics
	now       func() time.Time

	state atomic.Pointer[State]
}

// NewRefresher creates a refresher.
func NewRefresher(opts Options) (*Refresher, error) {
	if opts.Orchestrator == nil {
		return nil, ErrNoOrchestrator
	}
	r := &Refresher{
		orch:      opts.Orchestrator,
		snapshots: opts.Snapshots,
		history:   opts.History,
		notifier:  opts.Notifier,
		reports:   opts.Reports,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	r.logger = r.logger.WithField("component", "refresher")
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Current returns the latest state, or nil before the first successful run.
func (r *Refresher) Current() *State {
	return r.state.Load()
}

// Refresh runs the pipeline once under the configured timeout.
// On failure the previous state is kept.
func (r *Refresher) Refresh(ctx context.Context) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.orch.RunFromSource(ctx)
	if err != nil {
		return nil, err
	}

	createdAt := r.now().UTC()
	records := result.Table.Records()
	snap := &domain.Snapshot{
		RunID:      idhash.ComputeRunID(createdAt, records),
		CreatedAt:  createdAt,
		Accuracy:   result.Accuracy,
		Evaluation: result.Model.Evaluation(),
		Block:      result.Block,
		Dropped:    len(result.Dropped),
		Records:    records,
	}

	if r.snapshots != nil {
		if err := r.snapshots.Insert(ctx, snap); err != nil {
			return nil, fmt.Errorf("archive snapshot %s: %w", snap.RunID, err)
		}
	}
	if r.history != nil {
		// History is secondary; the dashboard still serves the new snapshot.
		if err := r.history.InsertBulk(ctx, snap.RunID, createdAt, records); err != nil {
			r.logger.WithError(err).WithField("run_id", snap.RunID).Warn("score history not archived")
		}
	}

	summary := metrics.Summarize(result.Table)
	state := &State{
		Snapshot: snap,
		Summary:  summary,
		Model:    result.Model,
		Scorer:   r.orch.Scorer(),
	}
	r.publish(state, createdAt)

	if r.reports != nil {
		if _, err := r.reports.Generate(result, snap.RunID); err != nil {
			r.logger.WithError(err).Warn("report not written")
		} else {
			r.metrics.RecordReport()
		}
	}

	fields := logrus.Fields{
		"run_id":   snap.RunID,
		"records":  len(records),
		"dropped":  snap.Dropped,
		"accuracy": snap.Accuracy,
		"duration": time.Since(start).String(),
	}
	if snap.Block != nil {
		fields["block"] = snap.Block.Number
	}
	r.logger.WithFields(fields).Info("refresh complete")

	return state, nil
}

// Restore loads the newest archived snapshot and retrains on it, so a restarted
// server serves data before its first refresh. No archive or an empty one is not an error.
func (r *Refresher) Restore(ctx context.Context) error {
	if r.snapshots == nil {
		return nil
	}
	snap, err := r.snapshots.GetLatest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}

	table := snap.Table()
	model, _, err := r.orch.Classifier().Train(table.Features(), table.Labels())
	if err != nil {
		return fmt.Errorf("retrain snapshot %s: %w", snap.RunID, err)
	}

	r.publish(&State{
		Snapshot: snap,
		Summary:  metrics.Summarize(table),
		Model:    model,
		Scorer:   r.orch.Scorer(),
	}, snap.CreatedAt)

	r.logger.WithFields(logrus.Fields{
		"run_id":     snap.RunID,
		"created_at": snap.CreatedAt,
	}).Info("restored snapshot")
	return nil
}

// Start refreshes immediately, then every interval until ctx ends.
// Failed runs are logged and retried on the next tick.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	r.refreshLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return nil
		case <-ticker.C:
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.WithError(err).Error("refresh failed, keeping previous snapshot")
	}
}

func (r *Refresher) publish(state *State, at time.Time) {
	r.state.Store(state)
	r.metrics.RecordRefresh(at)
	if b := state.Snapshot.Block; b != nil {
		r.metrics.RecordBlock(b.Number)
	}
	if r.notifier != nil {
		r.notifier.Publish(state.Snapshot)
	}
}
