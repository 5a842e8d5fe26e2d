// Package scoring computes the composite protocol risk score and its label.
//
// Formula:
//
//	ratio           = total_volume / market_cap
//	liquidity_risk  = 1 / (1 + ratio / liquidity_pivot)
//	volatility_risk = clamp(volatility, 0, 1)
//	risk_score      = 100 * (w_vol * volatility_risk + w_liq * liquidity_risk)
//
// The score lies in [0, 100], never decreases as volatility grows and never
// increases as volume grows. A zero market cap scores MaxScore.
package scoring

import (
	"defi-risk-lab/internal/domain"
)

// Scorer computes risk scores and labels. It holds no mutable state.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// NewDefaultScorer returns a Scorer with DefaultConfig.
func NewDefaultScorer() *Scorer {
	return &Scorer{cfg: DefaultConfig()}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Thresholds returns the label thresholds.
func (s *Scorer) Thresholds() Thresholds {
	return s.cfg.Thresholds
}

// Score scores every record in input order.
func (s *Scorer) Score(records []domain.ProtocolRecord) []domain.ScoredRecord {
	out := make([]domain.ScoredRecord, len(records))
	for i, r := range records {
		out[i] = s.ScoreOne(r)
	}
	return out
}

// ScoreOne scores a single record. The label is always derived from the score.
func (s *Scorer) ScoreOne(r domain.ProtocolRecord) domain.ScoredRecord {
	score := s.RiskScore(r.Features())
	return domain.ScoredRecord{
		ProtocolRecord: r,
		RiskScore:      score,
		RiskLabel:      s.Label(score),
	}
}

// RiskScore computes the composite score for a feature vector.
func (s *Scorer) RiskScore(fv domain.FeatureVector) float64 {
	if fv.MarketCap <= 0 {
		return MaxScore
	}

	liquidity := s.liquidityRisk(fv.TotalVolume / fv.MarketCap)
	volatility := clamp01(fv.Volatility)

	score := MaxScore * (s.cfg.VolatilityWeight*volatility + s.cfg.LiquidityWeight*liquidity)
	// Rounding in the weighted sum can overshoot the bound by an ulp.
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Label maps a score to its label using the configured thresholds.
func (s *Scorer) Label(score float64) domain.RiskLabel {
	return s.cfg.Thresholds.Label(score)
}

// liquidityRisk is 1 at zero volume and decays toward 0 as the ratio grows.
func (s *Scorer) liquidityRisk(ratio float64) float64 {
	if ratio <= 0 {
		return 1
	}
	return 1 / (1 + ratio/s.cfg.LiquidityPivot)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
