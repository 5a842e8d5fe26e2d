// Package verification checks that archived snapshots reproduce under the current
// scorer and classifier: every stored score and label is recomputed and compared.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/scoring"
	"defi-risk-lab/internal/storage"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// ErrNoStore is returned by VerifyRun without a snapshot store.
var ErrNoStore = errors.New("snapshot store is required")

// FieldDivergence represents a mismatch between stored and recomputed values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // stored value
	Actual   any    // recomputed value
}

// RecordResult contains the result of verifying a single scored record.
type RecordResult struct {
	Index       int
	Name        string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for one snapshot.
type Report struct {
	RunID            string
	TotalRecords     int
	MatchedRecords   int
	DivergentRecords int
	Results          []RecordResult // divergent records only, in input order

	// Model reproduction; skipped when the snapshot was evaluated differently
	// from the verifier's classifier config.
	ModelChecked     bool
	ModelDivergences []FieldDivergence
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return r.DivergentRecords == 0 && len(r.ModelDivergences) == 0
}

// CompareScoredRecords compares a stored record with its recomputed score and label.
func CompareScoredRecords(stored, recomputed domain.ScoredRecord) []FieldDivergence {
	var divergences []FieldDivergence

	if !floatEqual(stored.RiskScore, recomputed.RiskScore) {
		divergences = append(divergences, FieldDivergence{
			Field:    "RiskScore",
			Expected: stored.RiskScore,
			Actual:   recomputed.RiskScore,
		})
	}

	if stored.RiskLabel != recomputed.RiskLabel {
		divergences = append(divergences, FieldDivergence{
			Field:    "RiskLabel",
			Expected: stored.RiskLabel,
			Actual:   recomputed.RiskLabel,
		})
	}

	return divergences
}

// SnapshotVerifier re-scores and retrains archived snapshots.
type SnapshotVerifier struct {
	store      storage.SnapshotStore
	scorer     *scoring.Scorer
	classifier classifier.Config
}

// NewSnapshotVerifier creates a verifier. store may be nil when only VerifySnapshot is used.
func NewSnapshotVerifier(store storage.SnapshotStore, scorer *scoring.Scorer, cfg classifier.Config) *SnapshotVerifier {
	if scorer == nil {
		scorer = scoring.NewDefaultScorer()
	}
	return &SnapshotVerifier{store: store, scorer: scorer, classifier: cfg}
}

// VerifyRun loads a snapshot by run id and verifies it.
func (v *SnapshotVerifier) VerifyRun(ctx context.Context, runID string) (*Report, error) {
	if v.store == nil {
		return nil, ErrNoStore
	}
	snap, err := v.store.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", runID, err)
	}
	return v.VerifySnapshot(snap), nil
}

// VerifyLatest verifies the newest archived snapshot.
func (v *SnapshotVerifier) VerifyLatest(ctx context.Context) (*Report, error) {
	if v.store == nil {
		return nil, ErrNoStore
	}
	snap, err := v.store.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return v.VerifySnapshot(snap), nil
}

// VerifySnapshot recomputes every record and, when comparable, the model accuracy.
func (v *SnapshotVerifier) VerifySnapshot(snap *domain.Snapshot) *Report {
	report := &Report{
		RunID:        snap.RunID,
		TotalRecords: len(snap.Records),
	}

	for i, stored := range snap.Records {
		recomputed := v.scorer.ScoreOne(stored.ProtocolRecord)
		divergences := CompareScoredRecords(stored, recomputed)
		if len(divergences) == 0 {
			report.MatchedRecords++
			continue
		}
		report.DivergentRecords++
		report.Results = append(report.Results, RecordResult{
			Index:       i,
			Name:        stored.Name,
			Match:       false,
			Divergences: divergences,
		})
	}

	if evaluationMode(v.classifier) == snap.Evaluation {
		report.ModelChecked = true
		report.ModelDivergences = v.verifyModel(snap)
	}

	return report
}

func (v *SnapshotVerifier) verifyModel(snap *domain.Snapshot) []FieldDivergence {
	table := snap.Table()
	model, err := classifier.Train(v.classifier, table.Features(), table.Labels())
	if err != nil {
		return []FieldDivergence{{Field: "Train", Expected: "trained model", Actual: err.Error()}}
	}
	if !floatEqual(snap.Accuracy, model.Accuracy()) {
		return []FieldDivergence{{Field: "Accuracy", Expected: snap.Accuracy, Actual: model.Accuracy()}}
	}
	return nil
}

func evaluationMode(cfg classifier.Config) string {
	if cfg.HoldoutEvery >= 2 {
		return domain.EvaluationHoldout
	}
	return domain.EvaluationSelf
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
