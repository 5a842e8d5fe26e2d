package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"defi-risk-lab/internal/domain"
)

var csvHeader = []string{"name", "market_cap", "total_volume", "volatility", "risk_score", "risk_label"}

// RenderCSV renders scored records as CSV, one row per record in table order.
func RenderCSV(table *domain.ScoredTable) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range table.Records() {
		row := []string{
			r.Name,
			formatFloat(r.MarketCap),
			formatFloat(r.TotalVolume),
			formatFloat(r.Volatility),
			strconv.FormatFloat(r.RiskScore, 'f', 6, 64),
			r.RiskLabel.String(),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
