package reporting

import (
	"fmt"
	"strings"
	"time"

	"defi-risk-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# DeFi Protocol Risk Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	}

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Scored Records | %d |\n", r.DataSummary.TotalRecords))
	sb.WriteString(fmt.Sprintf("| Dropped Records | %d |\n", r.DataSummary.DroppedRecords))
	sb.WriteString(fmt.Sprintf("| Model Accuracy | %.4f |\n", r.Model.Accuracy))
	sb.WriteString(fmt.Sprintf("| Evaluation | %s |\n", r.Model.Evaluation))
	if r.Model.Samples > 0 {
		sb.WriteString(fmt.Sprintf("| Training Samples | %d |\n", r.Model.Samples))
		sb.WriteString(fmt.Sprintf("| Tree Depth / Leaves | %d / %d |\n", r.Model.Depth, r.Model.Leaves))
	}
	if b := r.DataSummary.Block; b != nil {
		sb.WriteString(fmt.Sprintf("| Latest Ethereum Block | %d (%s) |\n", b.Number, b.Timestamp.Format(time.RFC3339)))
	} else {
		sb.WriteString("| Latest Ethereum Block | unavailable |\n")
	}
	sb.WriteString("\n")

	if r.Model.Evaluation == domain.EvaluationSelf {
		sb.WriteString("**Note:** accuracy is measured on the training data and overstates out-of-sample quality.\n\n")
	}

	s := r.Summary

	// Risk Distribution
	sb.WriteString("## Risk Distribution\n\n")
	if s != nil && s.Count > 0 {
		sb.WriteString("| Label | Count | Share |\n")
		sb.WriteString("|-------|-------|-------|\n")
		for _, d := range s.Distribution {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f%% |\n", d.Label, d.Count, d.Share*100))
		}
	} else {
		sb.WriteString("No scored records available.\n")
	}
	sb.WriteString("\n")

	// Top by Market Cap
	sb.WriteString("## Top Protocols by Market Cap\n\n")
	if s != nil && len(s.TopByMarketCap) > 0 {
		sb.WriteString("| # | Name | Market Cap | Volume | Volatility | Score | Label |\n")
		sb.WriteString("|---|------|------------|--------|------------|-------|-------|\n")
		for i, rec := range s.TopByMarketCap {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.0f | %.0f | %.4f | %.2f | %s |\n",
				i+1, escapeCell(rec.Name), rec.MarketCap, rec.TotalVolume, rec.Volatility, rec.RiskScore, rec.RiskLabel))
		}
	} else {
		sb.WriteString("No protocols available.\n")
	}
	sb.WriteString("\n")

	// Score Statistics
	sb.WriteString("## Risk Score Statistics\n\n")
	if s != nil && s.Count > 0 {
		st := s.Scores
		sb.WriteString("| Mean | StdDev | Min | P10 | P25 | Median | P75 | P90 | Max |\n")
		sb.WriteString("|------|--------|-----|-----|-----|--------|-----|-----|-----|\n")
		sb.WriteString(fmt.Sprintf("| %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
			st.Mean, st.StdDev, st.Min, st.P10, st.P25, st.P50, st.P75, st.P90, st.Max))
	} else {
		sb.WriteString("No score statistics available.\n")
	}
	sb.WriteString("\n")

	// Data Quality
	if dq := r.DataQuality; dq != nil {
		sb.WriteString("## Data Quality\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, c := range dq.SufficiencyChecks {
			status := "PASS"
			if !c.Pass {
				status = "FAIL"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.Name, c.Threshold, c.Actual, status))
		}
		sb.WriteString("\n")
		if !dq.AllChecksPassed {
			sb.WriteString("**Warning:** data sufficiency checks failed; treat labels and accuracy as indicative only.\n\n")
		}
		if len(dq.IntegrityErrors) > 0 {
			sb.WriteString("### Integrity Errors\n\n")
			for _, e := range dq.IntegrityErrors {
				sb.WriteString("- " + e + "\n")
			}
			sb.WriteString("\n")
		}
	}

	// Dropped Records
	sb.WriteString("## Dropped Records\n\n")
	if len(r.Dropped) > 0 {
		sb.WriteString("| Index | Name | Field | Reason |\n")
		sb.WriteString("|-------|------|-------|--------|\n")
		for _, d := range r.Dropped {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", d.Index, escapeCell(d.Name), d.Field, escapeCell(d.Reason)))
		}
	} else {
		sb.WriteString("No records were dropped.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
