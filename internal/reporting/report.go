package reporting

import (
	"time"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/metrics"
)

// Report represents one pipeline run rendered for humans.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string

	// Data Summary
	DataSummary DataSummary

	// Model
	Model ModelSection

	// Score statistics, distribution and top protocols
	Summary *metrics.Summary

	// Records dropped by normalization, in input order
	Dropped []DroppedRow

	// Data sufficiency checks; nil when not evaluated
	DataQuality *DataQualitySection
}

// DataSummary contains data description.
type DataSummary struct {
	TotalRecords   int
	DroppedRecords int
	Block          *domain.BlockInfo // nil when chain context is unavailable
}

// ModelSection describes the trained classifier.
type ModelSection struct {
	Accuracy   float64
	Evaluation string // self | holdout
	Samples    int
	Depth      int
	Leaves     int
}

// DroppedRow is one malformed input record.
type DroppedRow struct {
	Index  int
	Name   string
	Field  string
	Reason string
}

// DataQualitySection contains data sufficiency results.
type DataQualitySection struct {
	SufficiencyChecks []SufficiencyCheckRow
	IntegrityErrors   []string
	AllChecksPassed   bool
}

// SufficiencyCheckRow is one sufficiency criterion.
type SufficiencyCheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}
