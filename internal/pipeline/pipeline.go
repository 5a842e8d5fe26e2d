// Package pipeline runs one batch pass: pipeline run, data sufficiency checks and report files.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/idhash"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/reporting"
)

// Pipeline orchestrates run + sufficiency + report generation.
type Pipeline struct {
	orch      *orchestrator.Orchestrator
	checker   *SufficiencyChecker
	outputDir string
	clock     func() time.Time
	logger    logrus.FieldLogger
}

// Result is the outcome of one batch pass.
type Result struct {
	RunID       string
	Run         *orchestrator.RunResult
	Sufficiency *SufficiencyResult
	Report      *reporting.Report
}

// New creates a pipeline writing report files into outputDir.
func New(orch *orchestrator.Orchestrator, outputDir string) *Pipeline {
	return &Pipeline{
		orch:      orch,
		checker:   NewSufficiencyChecker(),
		outputDir: outputDir,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    logging.Discard(),
	}
}

// WithChecker replaces the default sufficiency checker.
func (p *Pipeline) WithChecker(c *SufficiencyChecker) *Pipeline {
	p.checker = c
	return p
}

// WithClock sets a custom clock function for deterministic output.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// WithLogger sets the logger.
func (p *Pipeline) WithLogger(l logrus.FieldLogger) *Pipeline {
	p.logger = l
	return p
}

// Run executes the pipeline over raw records and writes:
// - RISK_REPORT.md
// - scored_protocols.csv
func (p *Pipeline) Run(ctx context.Context, raw []domain.RawRecord) (*Result, error) {
	result, err := p.orch.Run(ctx, raw)
	if err != nil {
		return nil, err
	}
	return p.finish(result)
}

// RunFromSource fetches from the orchestrator's data source, then behaves like Run.
func (p *Pipeline) RunFromSource(ctx context.Context) (*Result, error) {
	result, err := p.orch.RunFromSource(ctx)
	if err != nil {
		return nil, err
	}
	return p.finish(result)
}

func (p *Pipeline) finish(result *orchestrator.RunResult) (*Result, error) {
	now := p.clock()
	runID := idhash.ComputeRunID(now, result.Table.Records())

	suff := p.checker.Check(result)
	if !suff.AllPass {
		p.logger.WithFields(logrus.Fields{
			"run_id": runID,
			"errors": len(suff.Errors),
		}).Warn("data sufficiency checks failed")
	}

	report := reporting.Build(result, nil, now)
	report.RunID = runID
	report.DataQuality = convertToDataQuality(suff)

	if err := reporting.WriteFiles(p.outputDir, report, result.Table); err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{
		"run_id":     runID,
		"output_dir": p.outputDir,
	}).Info("report written")

	return &Result{
		RunID:       runID,
		Run:         result,
		Sufficiency: suff,
		Report:      report,
	}, nil
}
