package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/observability"
)

func sampleRaw() []domain.RawRecord {
	return []domain.RawRecord{
		{"name": "A", "market_cap": 1_000_000.0, "total_volume": 500_000.0, "volatility": 0.1},
		{"name": "B", "market_cap": "10,000", "total_volume": 9000, "volatility": "0.9"},
		{"name": "C", "market_cap": "N/A", "total_volume": 1, "volatility": 0.5},
		{"name": "D", "market_cap": 0, "total_volume": 100, "volatility": 0.2},
	}
}

type failingSource struct{ err error }

func (f failingSource) Fetch(context.Context) ([]domain.RawRecord, error) { return nil, f.err }

type fixedChain struct {
	block *domain.BlockInfo
	err   error
}

func (f fixedChain) LatestBlock(context.Context) (*domain.BlockInfo, error) { return f.block, f.err }

func TestOrchestrator_Run(t *testing.T) {
	orch := New(Options{})

	result, err := orch.Run(context.Background(), sampleRaw())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.Table.Len() != 3 {
		t.Fatalf("expected 3 scored records, got %d", result.Table.Len())
	}
	if len(result.Dropped) != 1 || result.Dropped[0].Index != 2 {
		t.Errorf("expected record 2 dropped, got %v", result.Dropped)
	}

	want := []domain.RiskLabel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}
	for i, label := range result.Table.Labels() {
		if label != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], label)
		}
	}

	if result.Model == nil {
		t.Fatal("expected trained model")
	}
	if result.Accuracy != 1.0 {
		t.Errorf("expected self accuracy 1.0, got %v", result.Accuracy)
	}

	// Every input record predicts its own label with the current model.
	preds, err := orch.Classifier().Predict(result.Table.Features())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := range preds {
		if preds[i] != want[i] {
			t.Errorf("prediction %d: expected %s, got %s", i, want[i], preds[i])
		}
	}
}

func TestOrchestrator_Run_AllMalformed(t *testing.T) {
	orch := New(Options{})

	_, err := orch.Run(context.Background(), []domain.RawRecord{
		{"name": "X", "market_cap": "N/A"},
	})
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}

	if orch.Classifier().Model() != nil {
		t.Error("training must not run after normalization fails")
	}
}

func TestOrchestrator_Run_SingleClassFailsTraining(t *testing.T) {
	orch := New(Options{})

	_, err := orch.Run(context.Background(), []domain.RawRecord{
		{"name": "A", "market_cap": 1, "total_volume": 1, "volatility": 0.1},
		{"name": "B", "market_cap": 1, "total_volume": 1, "volatility": 0.1},
	})
	if !errors.Is(err, classifier.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	var ide *classifier.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected *InsufficientDataError, got %T", err)
	}
}

func TestOrchestrator_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Run(ctx, sampleRaw())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOrchestrator_RunFromSource(t *testing.T) {
	block := &domain.BlockInfo{Number: 42, Hash: "0xabc", Timestamp: time.Unix(1_700_000_000, 0).UTC()}
	orch := New(Options{
		Source: &datasource.Static{Records: sampleRaw()},
		Chain:  fixedChain{block: block},
	})

	result, err := orch.RunFromSource(context.Background())
	if err != nil {
		t.Fatalf("RunFromSource: %v", err)
	}
	if result.Block == nil || result.Block.Number != 42 {
		t.Errorf("expected block 42, got %+v", result.Block)
	}
}

func TestOrchestrator_RunFromSource_ChainFailureIsNotFatal(t *testing.T) {
	orch := New(Options{
		Source: &datasource.Static{Records: sampleRaw()},
		Chain:  fixedChain{err: errors.New("rpc down")},
	})

	result, err := orch.RunFromSource(context.Background())
	if err != nil {
		t.Fatalf("RunFromSource: %v", err)
	}
	if result.Block != nil {
		t.Errorf("expected nil block, got %+v", result.Block)
	}
}

func TestOrchestrator_RunFromSource_Errors(t *testing.T) {
	if _, err := New(Options{}).RunFromSource(context.Background()); !errors.Is(err, ErrNoDataSource) {
		t.Errorf("expected ErrNoDataSource, got %v", err)
	}

	boom := errors.New("upstream unavailable")
	_, err := New(Options{Source: failingSource{err: boom}}).RunFromSource(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected source error, got %v", err)
	}
}

func TestOrchestrator_RecordsMetrics(t *testing.T) {
	m := observability.NewMetrics("orch_test", prometheus.NewRegistry())
	orch := New(Options{Metrics: m})

	if _, err := orch.Run(context.Background(), sampleRaw()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(m.RecordsNormalized); got != 3 {
		t.Errorf("expected 3 normalized, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsDropped); got != 1 {
		t.Errorf("expected 1 dropped, got %v", got)
	}
	if got := testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(PhaseTrain, "success")); got != 1 {
		t.Errorf("expected 1 successful train phase, got %v", got)
	}
	if got := testutil.ToFloat64(m.ModelAccuracy.WithLabelValues(domain.EvaluationSelf)); got != 1 {
		t.Errorf("expected accuracy gauge 1, got %v", got)
	}
}

func TestOrchestrator_RunsAreIndependent(t *testing.T) {
	orch := New(Options{})
	raw := sampleRaw()

	first, err := orch.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := orch.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Model == second.Model {
		t.Error("each run must train a new model")
	}
	r1, r2 := first.Table.Records(), second.Table.Records()
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Errorf("record %d differs between runs: %+v vs %+v", i, r1[i], r2[i])
		}
	}
	if orch.Classifier().Model() != second.Model {
		t.Error("latest model must be current")
	}
}
