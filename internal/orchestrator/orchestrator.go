// Package orchestrator provides E2E pipeline orchestration.
// It coordinates: normalization → scoring → classifier training
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/normalization"
	"defi-risk-lab/internal/observability"
	"defi-risk-lab/internal/scoring"
)

var (
	// ErrNoRecords is returned when normalization keeps no records.
	ErrNoRecords = errors.New("no valid records after normalization")

	// ErrNoDataSource is returned by RunFromSource without a configured source.
	ErrNoDataSource = errors.New("no data source configured")
)

// Phase names used in errors, logs and metrics.
const (
	PhaseFetch     = "fetch"
	PhaseNormalize = "normalize"
	PhaseScore     = "score"
	PhaseTrain     = "train"
)

// Orchestrator coordinates the E2E pipeline execution.
// Flow: normalization → scoring → training
type Orchestrator struct {
	scorer     *scoring.Scorer
	classifier *classifier.Classifier
	normalizer *normalization.Normalizer
	source     datasource.DataSource
	chain      datasource.ChainReader
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
}

// Options for creating Orchestrator.
type Options struct {
	// Pipeline stages; nil uses defaults
	Scorer     *scoring.Scorer
	Classifier *classifier.Classifier
	Normalizer *normalization.Normalizer

	// Inputs for RunFromSource
	Source datasource.DataSource
	Chain  datasource.ChainReader // optional

	Logger  logrus.FieldLogger
	Metrics *observability.Metrics // optional
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		scorer:     opts.Scorer,
		classifier: opts.Classifier,
		normalizer: opts.Normalizer,
		source:     opts.Source,
		chain:      opts.Chain,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.scorer == nil {
		o.scorer = scoring.NewDefaultScorer()
	}
	if o.classifier == nil {
		o.classifier = classifier.New(classifier.DefaultConfig())
	}
	if o.normalizer == nil {
		o.normalizer = normalization.NewNormalizer(o.logger)
	}
	return o
}

// Classifier returns the classifier holding the latest trained model.
func (o *Orchestrator) Classifier() *classifier.Classifier {
	return o.classifier
}

// Scorer returns the scorer used for every run.
func (o *Orchestrator) Scorer() *scoring.Scorer {
	return o.scorer
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Table    *domain.ScoredTable
	Model    *classifier.Model
	Accuracy float64
	Dropped  []*normalization.MalformedRecordError
	Block    *domain.BlockInfo // nil without a chain reader or on chain failure
}

// Run executes the full pipeline over raw records.
// Phases:
//  1. Normalize raw records
//  2. Score and label
//  3. Train classifier
func (o *Orchestrator) Run(ctx context.Context, raw []domain.RawRecord) (*RunResult, error) {
	result := &RunResult{}

	// Phase 1: Normalization
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("phase 1 (%s) failed: %w", PhaseNormalize, err)
	}
	start := time.Now()
	records, dropped := o.normalizer.Normalize(raw)
	result.Dropped = dropped
	o.metrics.RecordNormalization(len(records), len(dropped))
	if len(records) == 0 {
		o.metrics.RecordPipelineRun(PhaseNormalize, "error", time.Since(start))
		return nil, fmt.Errorf("phase 1 (%s) failed: %w", PhaseNormalize, ErrNoRecords)
	}
	o.metrics.RecordPipelineRun(PhaseNormalize, "success", time.Since(start))
	o.logger.WithFields(logrus.Fields{
		"phase":   PhaseNormalize,
		"input":   len(raw),
		"kept":    len(records),
		"dropped": len(dropped),
	}).Info("normalized records")

	// Phase 2: Scoring
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("phase 2 (%s) failed: %w", PhaseScore, err)
	}
	start = time.Now()
	result.Table = domain.NewScoredTable(o.scorer.Score(records))
	o.metrics.RecordPipelineRun(PhaseScore, "success", time.Since(start))
	o.logger.WithFields(logrus.Fields{
		"phase":   PhaseScore,
		"records": result.Table.Len(),
	}).Info("scored records")

	// Phase 3: Training
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("phase 3 (%s) failed: %w", PhaseTrain, err)
	}
	start = time.Now()
	model, acc, err := o.classifier.Train(result.Table.Features(), result.Table.Labels())
	if err != nil {
		o.metrics.RecordPipelineRun(PhaseTrain, "error", time.Since(start))
		return nil, fmt.Errorf("phase 3 (%s) failed: %w", PhaseTrain, err)
	}
	o.metrics.RecordPipelineRun(PhaseTrain, "success", time.Since(start))
	o.metrics.RecordModel(model.Evaluation(), acc, model.Samples())
	result.Model = model
	result.Accuracy = acc

	o.logger.WithFields(logrus.Fields{
		"phase":      PhaseTrain,
		"accuracy":   acc,
		"evaluation": model.Evaluation(),
		"depth":      model.Depth(),
		"leaves":     model.Leaves(),
	}).Info("trained classifier")

	return result, nil
}

// RunFromSource fetches raw records from the configured source, then runs the pipeline.
// The latest block is attached when a chain reader is configured; chain failures are logged only.
func (o *Orchestrator) RunFromSource(ctx context.Context) (*RunResult, error) {
	if o.source == nil {
		return nil, ErrNoDataSource
	}

	start := time.Now()
	raw, err := o.source.Fetch(ctx)
	if err != nil {
		o.metrics.RecordPipelineRun(PhaseFetch, "error", time.Since(start))
		return nil, fmt.Errorf("phase 0 (%s) failed: %w", PhaseFetch, err)
	}
	o.metrics.RecordPipelineRun(PhaseFetch, "success", time.Since(start))
	o.logger.WithFields(logrus.Fields{
		"phase":   PhaseFetch,
		"records": len(raw),
	}).Info("fetched raw records")

	block := o.latestBlock(ctx)

	result, err := o.Run(ctx, raw)
	if err != nil {
		return nil, err
	}
	result.Block = block
	return result, nil
}

func (o *Orchestrator) latestBlock(ctx context.Context) *domain.BlockInfo {
	if o.chain == nil {
		return nil
	}
	block, err := o.chain.LatestBlock(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("latest block unavailable")
		return nil
	}
	o.logger.WithField("block", block.Number).Debug("latest block")
	return block
}
