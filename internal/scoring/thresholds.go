package scoring

import (
	"fmt"

	"defi-risk-lab/internal/domain"
)

// Thresholds partitions the score axis into closed-open label intervals:
//
//	Low    = (-inf, LowUpper)
//	Medium = [LowUpper, MediumUpper)
//	High   = [MediumUpper, +inf)
type Thresholds struct {
	LowUpper    float64 `yaml:"low_upper"`
	MediumUpper float64 `yaml:"medium_upper"`
}

// Validate requires 0 < LowUpper < MediumUpper <= MaxScore.
func (t Thresholds) Validate() error {
	if !(t.LowUpper > 0 && t.LowUpper < t.MediumUpper && t.MediumUpper <= MaxScore) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < low_upper < medium_upper <= %g, got %g / %g",
			ErrInvalidConfig, MaxScore, t.LowUpper, t.MediumUpper)
	}
	return nil
}

// Label maps a score to exactly one label.
func (t Thresholds) Label(score float64) domain.RiskLabel {
	switch {
	case score >= t.MediumUpper:
		return domain.RiskHigh
	case score >= t.LowUpper:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
