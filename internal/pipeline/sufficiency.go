package pipeline

import (
	"fmt"
	"math"
	"sort"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/reporting"
)

// Default sufficiency thresholds.
const (
	DefaultMinRecords  = 10
	DefaultMaxDropRate = 0.20
)

// SufficiencyCheck represents one data sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// SufficiencyResult contains all checks.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
	Errors  []string // data integrity errors
}

// SufficiencyChecker decides whether a run had enough clean data for its labels
// and accuracy to be meaningful. Failing checks never fail the run.
type SufficiencyChecker struct {
	minRecords  int
	maxDropRate float64
}

// NewSufficiencyChecker creates a checker with default thresholds.
func NewSufficiencyChecker() *SufficiencyChecker {
	return &SufficiencyChecker{
		minRecords:  DefaultMinRecords,
		maxDropRate: DefaultMaxDropRate,
	}
}

// WithMinRecords sets the minimum number of scored records.
func (c *SufficiencyChecker) WithMinRecords(n int) *SufficiencyChecker {
	c.minRecords = n
	return c
}

// WithMaxDropRate sets the maximum share of input records dropped by normalization.
func (c *SufficiencyChecker) WithMaxDropRate(rate float64) *SufficiencyChecker {
	c.maxDropRate = rate
	return c
}

// Check evaluates all sufficiency checks against a completed run.
func (c *SufficiencyChecker) Check(result *orchestrator.RunResult) *SufficiencyResult {
	records := result.Table.Records()

	out := &SufficiencyResult{
		Checks:  make([]SufficiencyCheck, 0, 5),
		AllPass: true,
		Errors:  []string{},
	}
	add := func(check SufficiencyCheck, errs []string) {
		out.Checks = append(out.Checks, check)
		if !check.Pass {
			out.AllPass = false
			out.Errors = append(out.Errors, errs...)
		}
	}

	add(c.checkRecordCount(records), nil)
	add(c.checkDropRate(len(records), len(result.Dropped)), nil)
	add(c.checkLabelCoverage(records), nil)
	add(c.checkDuplicateNames(records))
	add(c.checkVolatilityRange(records))

	return out
}

// checkRecordCount: scored records >= minRecords.
func (c *SufficiencyChecker) checkRecordCount(records []domain.ScoredRecord) SufficiencyCheck {
	return SufficiencyCheck{
		Name:      "Scored records",
		Threshold: fmt.Sprintf(">= %d", c.minRecords),
		Actual:    fmt.Sprintf("%d", len(records)),
		Pass:      len(records) >= c.minRecords,
	}
}

// checkDropRate: dropped / (kept + dropped) <= maxDropRate.
func (c *SufficiencyChecker) checkDropRate(kept, dropped int) SufficiencyCheck {
	rate := 0.0
	if total := kept + dropped; total > 0 {
		rate = float64(dropped) / float64(total)
	}
	return SufficiencyCheck{
		Name:      "Dropped record share",
		Threshold: fmt.Sprintf("<= %.0f%%", c.maxDropRate*100),
		Actual:    fmt.Sprintf("%.1f%% (%d)", rate*100, dropped),
		Pass:      rate <= c.maxDropRate,
	}
}

// checkLabelCoverage: every risk label appears at least once.
func (c *SufficiencyChecker) checkLabelCoverage(records []domain.ScoredRecord) SufficiencyCheck {
	seen := make(map[domain.RiskLabel]bool)
	for _, r := range records {
		seen[r.RiskLabel] = true
	}
	all := domain.AllLabels()
	return SufficiencyCheck{
		Name:      "Risk labels represented",
		Threshold: fmt.Sprintf("= %d", len(all)),
		Actual:    fmt.Sprintf("%d", len(seen)),
		Pass:      len(seen) == len(all),
	}
}

// checkDuplicateNames: duplicate protocol name count == 0.
func (c *SufficiencyChecker) checkDuplicateNames(records []domain.ScoredRecord) (SufficiencyCheck, []string) {
	seen := make(map[string]int)
	for _, r := range records {
		seen[r.Name]++
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	duplicateCount := 0
	var errors []string
	for _, name := range keys {
		if count := seen[name]; count > 1 {
			duplicateCount++
			errors = append(errors, fmt.Sprintf("duplicate protocol name: %q (count=%d)", name, count))
		}
	}

	return SufficiencyCheck{
		Name:      "Duplicate protocol names",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", duplicateCount),
		Pass:      duplicateCount == 0,
	}, errors
}

// checkVolatilityRange: volatility outside [0,1] count == 0.
// Normalization keeps such records, so the score clamps them.
func (c *SufficiencyChecker) checkVolatilityRange(records []domain.ScoredRecord) (SufficiencyCheck, []string) {
	var errors []string
	for _, r := range records {
		if r.Volatility < 0 || r.Volatility > 1 || math.IsNaN(r.Volatility) {
			errors = append(errors, fmt.Sprintf("volatility out of range: %q (%g)", r.Name, r.Volatility))
		}
	}
	return SufficiencyCheck{
		Name:      "Volatility outside [0,1]",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", len(errors)),
		Pass:      len(errors) == 0,
	}, errors
}

// convertToDataQuality converts SufficiencyResult to reporting.DataQualitySection.
func convertToDataQuality(result *SufficiencyResult) *reporting.DataQualitySection {
	checks := make([]reporting.SufficiencyCheckRow, len(result.Checks))
	for i, c := range result.Checks {
		checks[i] = reporting.SufficiencyCheckRow{
			Name:      c.Name,
			Threshold: c.Threshold,
			Actual:    c.Actual,
			Pass:      c.Pass,
		}
	}
	return &reporting.DataQualitySection{
		SufficiencyChecks: checks,
		IntegrityErrors:   result.Errors,
		AllChecksPassed:   result.AllPass,
	}
}
