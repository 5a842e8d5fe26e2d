package domain

import "time"

// Evaluation modes reported with model accuracy.
const (
	EvaluationSelf    = "self"
	EvaluationHoldout = "holdout"
)

// Snapshot is one archived pipeline run.
type Snapshot struct {
	RunID      string         `json:"run_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Accuracy   float64        `json:"accuracy"`
	Evaluation string         `json:"evaluation"` // self | holdout
	Block      *BlockInfo     `json:"block,omitempty"`
	Dropped    int            `json:"dropped"`
	Records    []ScoredRecord `json:"records"`
}

// Table wraps the snapshot records in a read-only view.
func (s *Snapshot) Table() *ScoredTable {
	return NewScoredTable(s.Records)
}

// ScoreHistoryEntry is one protocol's scored record within a past run.
type ScoreHistoryEntry struct {
	RunID     string       `json:"run_id"`
	CreatedAt time.Time    `json:"created_at"`
	Record    ScoredRecord `json:"record"`
}
