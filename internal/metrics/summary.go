// Package metrics computes descriptive statistics over scored protocol tables.
package metrics

import (
	"sort"

	"defi-risk-lab/internal/domain"
)

// DefaultTopN is the number of protocols listed by market cap.
const DefaultTopN = 10

// LabelShare is one bucket of the label distribution.
type LabelShare struct {
	Label domain.RiskLabel `json:"label"`
	Count int              `json:"count"`
	Share float64          `json:"share"`
}

// ScatterPoint pairs market cap with risk score for one protocol.
type ScatterPoint struct {
	Name      string           `json:"name"`
	MarketCap float64          `json:"market_cap"`
	RiskScore float64          `json:"risk_score"`
	RiskLabel domain.RiskLabel `json:"risk_label"`
}

// ScoreStats describes the risk score distribution.
type ScoreStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
}

// Summary aggregates a scored table for reports and the dashboard.
type Summary struct {
	Count          int                   `json:"count"`
	Scores         ScoreStats            `json:"scores"`
	Distribution   []LabelShare          `json:"distribution"`
	TopByMarketCap []domain.ScoredRecord `json:"top_by_market_cap"`
	Scatter        []ScatterPoint        `json:"scatter"`
}

// Summarize computes all statistics for table. A nil or empty table yields zero values
// with a full, zero-count distribution.
func Summarize(table *domain.ScoredTable) *Summary {
	records := table.Records()
	n := len(records)

	s := &Summary{
		Count:          n,
		Distribution:   Distribution(table),
		TopByMarketCap: TopByMarketCap(table, DefaultTopN),
		Scatter:        make([]ScatterPoint, 0, n),
	}

	if n == 0 {
		return s
	}

	scores := make([]float64, n)
	for i, r := range records {
		scores[i] = r.RiskScore
		s.Scatter = append(s.Scatter, ScatterPoint{
			Name:      r.Name,
			MarketCap: r.MarketCap,
			RiskScore: r.RiskScore,
			RiskLabel: r.RiskLabel,
		})
	}

	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)

	mean := computeMean(scores)
	s.Scores = ScoreStats{
		Mean:   mean,
		StdDev: computeStddev(scores, mean),
		Min:    sorted[0],
		Max:    sorted[n-1],
		P10:    computePercentile(sorted, 0.10),
		P25:    computePercentile(sorted, 0.25),
		P50:    computePercentile(sorted, 0.50),
		P75:    computePercentile(sorted, 0.75),
		P90:    computePercentile(sorted, 0.90),
	}
	return s
}

// Distribution counts labels in ascending severity. Every label is present.
func Distribution(table *domain.ScoredTable) []LabelShare {
	labels := domain.AllLabels()
	counts := make(map[domain.RiskLabel]int, len(labels))
	for _, l := range table.Labels() {
		counts[l]++
	}

	total := table.Len()
	out := make([]LabelShare, len(labels))
	for i, l := range labels {
		out[i] = LabelShare{Label: l, Count: counts[l], Share: computeShare(counts[l], total)}
	}
	return out
}

// TopByMarketCap returns up to n records by descending market cap, ties by name.
func TopByMarketCap(table *domain.ScoredTable, n int) []domain.ScoredRecord {
	records := table.Records()
	if records == nil {
		records = []domain.ScoredRecord{}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].MarketCap != records[j].MarketCap {
			return records[i].MarketCap > records[j].MarketCap
		}
		return records[i].Name < records[j].Name
	})
	if n < 0 {
		n = 0
	}
	if n < len(records) {
		records = records[:n]
	}
	return records
}
