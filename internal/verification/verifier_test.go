package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/idhash"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/pipeline"
	"defi-risk-lab/internal/scoring"
	"defi-risk-lab/internal/storage"
	"defi-risk-lab/internal/storage/memory"
)

var fixedTime = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

func buildSnapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	result, err := orchestrator.New(orchestrator.Options{}).Run(context.Background(), pipeline.Fixtures())
	if err != nil {
		t.Fatalf("orchestrator run: %v", err)
	}
	records := result.Table.Records()
	return &domain.Snapshot{
		RunID:      idhash.ComputeRunID(fixedTime, records),
		CreatedAt:  fixedTime,
		Accuracy:   result.Accuracy,
		Evaluation: result.Model.Evaluation(),
		Dropped:    len(result.Dropped),
		Records:    records,
	}
}

func TestCompareScoredRecords_Identical(t *testing.T) {
	r := domain.ScoredRecord{
		ProtocolRecord: domain.ProtocolRecord{Name: "Aave", MarketCap: 1e9, TotalVolume: 1e8, Volatility: 0.1},
		RiskScore:      25.5,
		RiskLabel:      domain.RiskLow,
	}

	if d := CompareScoredRecords(r, r); len(d) != 0 {
		t.Errorf("Expected no divergences, got %d: %+v", len(d), d)
	}
}

func TestCompareScoredRecords_WithinTolerance(t *testing.T) {
	a := domain.ScoredRecord{RiskScore: 50.0, RiskLabel: domain.RiskMedium}
	b := domain.ScoredRecord{RiskScore: 50.0 + FloatTolerance/2, RiskLabel: domain.RiskMedium}

	if d := CompareScoredRecords(a, b); len(d) != 0 {
		t.Errorf("Expected no divergences within tolerance, got %+v", d)
	}
}

func TestCompareScoredRecords_Divergent(t *testing.T) {
	stored := domain.ScoredRecord{RiskScore: 39.0, RiskLabel: domain.RiskLow}
	recomputed := domain.ScoredRecord{RiskScore: 41.0, RiskLabel: domain.RiskMedium}

	d := CompareScoredRecords(stored, recomputed)
	if len(d) != 2 {
		t.Fatalf("Expected 2 divergences, got %d", len(d))
	}

	fields := map[string]bool{}
	for _, div := range d {
		fields[div.Field] = true
	}
	for _, f := range []string{"RiskScore", "RiskLabel"} {
		if !fields[f] {
			t.Errorf("Expected divergence on %s", f)
		}
	}
}

func TestVerifySnapshot_Reproduces(t *testing.T) {
	snap := buildSnapshot(t)
	v := NewSnapshotVerifier(nil, nil, classifier.DefaultConfig())

	report := v.VerifySnapshot(snap)

	if !report.OK() {
		t.Fatalf("Expected snapshot to reproduce, got %+v", report)
	}
	if report.TotalRecords != len(snap.Records) || report.MatchedRecords != len(snap.Records) {
		t.Errorf("Expected %d matched records, got %d/%d", len(snap.Records), report.MatchedRecords, report.TotalRecords)
	}
	if !report.ModelChecked {
		t.Error("Expected model check for matching evaluation mode")
	}
}

func TestVerifySnapshot_TamperedRecord(t *testing.T) {
	snap := buildSnapshot(t)
	snap.Records[0].RiskScore += 5
	snap.Accuracy = 0.5

	report := NewSnapshotVerifier(nil, nil, classifier.DefaultConfig()).VerifySnapshot(snap)

	if report.OK() {
		t.Fatal("Expected tampered snapshot to fail verification")
	}
	if report.DivergentRecords != 1 {
		t.Errorf("Expected 1 divergent record, got %d", report.DivergentRecords)
	}
	if report.Results[0].Index != 0 || report.Results[0].Name != snap.Records[0].Name {
		t.Errorf("Unexpected divergent record: %+v", report.Results[0])
	}
	if len(report.ModelDivergences) != 1 || report.ModelDivergences[0].Field != "Accuracy" {
		t.Errorf("Expected accuracy divergence, got %+v", report.ModelDivergences)
	}
}

func TestVerifySnapshot_DifferentThresholds(t *testing.T) {
	snap := buildSnapshot(t)

	cfg := scoring.DefaultConfig()
	cfg.Thresholds.LowUpper = 10
	cfg.Thresholds.MediumUpper = 20
	scorer, err := scoring.NewScorer(cfg)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	report := NewSnapshotVerifier(nil, scorer, classifier.DefaultConfig()).VerifySnapshot(snap)
	if report.DivergentRecords == 0 {
		t.Error("Expected label divergences under different thresholds")
	}
}

func TestVerifySnapshot_SkipsModelOnModeMismatch(t *testing.T) {
	snap := buildSnapshot(t)

	report := NewSnapshotVerifier(nil, nil, classifier.Config{HoldoutEvery: 3}).VerifySnapshot(snap)
	if report.ModelChecked {
		t.Error("Expected model check to be skipped for different evaluation mode")
	}
	if !report.OK() {
		t.Errorf("Expected records to reproduce, got %+v", report.Results)
	}
}

func TestVerifyRun_FromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()
	snap := buildSnapshot(t)
	if err := store.Insert(ctx, snap); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	v := NewSnapshotVerifier(store, nil, classifier.DefaultConfig())

	report, err := v.VerifyRun(ctx, snap.RunID)
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if report.RunID != snap.RunID || !report.OK() {
		t.Errorf("Unexpected report: %+v", report)
	}

	latest, err := v.VerifyLatest(ctx)
	if err != nil {
		t.Fatalf("VerifyLatest: %v", err)
	}
	if latest.RunID != snap.RunID {
		t.Errorf("Expected latest run %s, got %s", snap.RunID, latest.RunID)
	}

	if _, err := v.VerifyRun(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestVerifyRun_NoStore(t *testing.T) {
	v := NewSnapshotVerifier(nil, nil, classifier.DefaultConfig())
	if _, err := v.VerifyRun(context.Background(), "x"); !errors.Is(err, ErrNoStore) {
		t.Errorf("Expected ErrNoStore, got %v", err)
	}
}
