package metrics

import (
	"math"
	"testing"

	"defi-risk-lab/internal/domain"
)

func scored(name string, mcap, score float64, label domain.RiskLabel) domain.ScoredRecord {
	return domain.ScoredRecord{
		ProtocolRecord: domain.ProtocolRecord{Name: name, MarketCap: mcap, TotalVolume: 1, Volatility: 0.1},
		RiskScore:      score,
		RiskLabel:      label,
	}
}

func TestSummarize(t *testing.T) {
	table := domain.NewScoredTable([]domain.ScoredRecord{
		scored("a", 100, 10, domain.RiskLow),
		scored("b", 300, 20, domain.RiskLow),
		scored("c", 200, 50, domain.RiskMedium),
		scored("d", 50, 80, domain.RiskHigh),
	})

	s := Summarize(table)

	if s.Count != 4 {
		t.Errorf("expected count 4, got %d", s.Count)
	}
	if s.Scores.Mean != 40 {
		t.Errorf("expected mean 40, got %v", s.Scores.Mean)
	}
	// sample stddev of {10,20,50,80}: sqrt((900+400+100+1600)/3) = sqrt(1000)
	if math.Abs(s.Scores.StdDev-math.Sqrt(1000)) > 1e-9 {
		t.Errorf("expected stddev sqrt(1000), got %v", s.Scores.StdDev)
	}
	if s.Scores.Min != 10 || s.Scores.Max != 80 {
		t.Errorf("expected min 10 max 80, got %v %v", s.Scores.Min, s.Scores.Max)
	}
	if s.Scores.P50 != 35 {
		t.Errorf("expected median 35, got %v", s.Scores.P50)
	}
	if len(s.Scatter) != 4 || s.Scatter[2].Name != "c" || s.Scatter[2].RiskScore != 50 {
		t.Errorf("unexpected scatter: %+v", s.Scatter)
	}
}

func TestDistribution(t *testing.T) {
	table := domain.NewScoredTable([]domain.ScoredRecord{
		scored("a", 1, 10, domain.RiskLow),
		scored("b", 1, 20, domain.RiskLow),
		scored("c", 1, 90, domain.RiskHigh),
		scored("d", 1, 95, domain.RiskHigh),
	})

	dist := Distribution(table)
	if len(dist) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(dist))
	}

	want := []LabelShare{
		{Label: domain.RiskLow, Count: 2, Share: 0.5},
		{Label: domain.RiskMedium, Count: 0, Share: 0},
		{Label: domain.RiskHigh, Count: 2, Share: 0.5},
	}
	for i := range want {
		if dist[i] != want[i] {
			t.Errorf("bucket %d: expected %+v, got %+v", i, want[i], dist[i])
		}
	}
}

func TestTopByMarketCap(t *testing.T) {
	table := domain.NewScoredTable([]domain.ScoredRecord{
		scored("small", 10, 90, domain.RiskHigh),
		scored("zeta", 500, 10, domain.RiskLow),
		scored("alpha", 500, 15, domain.RiskLow),
		scored("mid", 100, 50, domain.RiskMedium),
	})

	top := TopByMarketCap(table, 3)
	names := []string{"alpha", "zeta", "mid"}
	if len(top) != len(names) {
		t.Fatalf("expected %d records, got %d", len(names), len(top))
	}
	for i, n := range names {
		if top[i].Name != n {
			t.Errorf("position %d: expected %s, got %s", i, n, top[i].Name)
		}
	}

	if all := TopByMarketCap(table, 100); len(all) != 4 {
		t.Errorf("expected all 4 records, got %d", len(all))
	}
	if none := TopByMarketCap(table, -1); len(none) != 0 {
		t.Errorf("expected no records, got %d", len(none))
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 {
		t.Errorf("expected count 0, got %d", s.Count)
	}
	if len(s.Distribution) != 3 {
		t.Errorf("expected full distribution, got %d buckets", len(s.Distribution))
	}
	if s.TopByMarketCap == nil || s.Scatter == nil {
		t.Error("expected empty, non-nil slices")
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 2},
		{0.5, 3},
		{0.9, 4.6},
		{1, 5},
	}
	for _, tt := range tests {
		if got := computePercentile(sorted, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("p%.0f: expected %v, got %v", tt.p*100, tt.want, got)
		}
	}

	if got := computePercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for empty input, got %v", got)
	}
	if got := computeStddev([]float64{5}, 5); got != 0 {
		t.Errorf("expected 0 stddev for a single sample, got %v", got)
	}
}
