package domain

// RiskLabel is the categorical risk bucket derived from a risk score.
type RiskLabel string

const (
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// String returns the string representation of RiskLabel.
func (l RiskLabel) String() string {
	return string(l)
}

// IsValid checks if the label is one of the known buckets.
func (l RiskLabel) IsValid() bool {
	return l == RiskLow || l == RiskMedium || l == RiskHigh
}

// Severity orders labels: Low=0, Medium=1, High=2. Unknown labels return -1.
func (l RiskLabel) Severity() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// AllLabels returns every label in ascending severity.
func AllLabels() []RiskLabel {
	return []RiskLabel{RiskLow, RiskMedium, RiskHigh}
}
