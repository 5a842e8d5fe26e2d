package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/metrics"
	"defi-risk-lab/internal/orchestrator"
)

// Output file names written by WriteFiles.
const (
	MarkdownFile = "RISK_REPORT.md"
	CSVFile      = "scored_protocols.csv"
)

// Build assembles a report from a pipeline result.
// A nil summary is computed from the result table.
func Build(result *orchestrator.RunResult, summary *metrics.Summary, now time.Time) *Report {
	if summary == nil {
		summary = metrics.Summarize(result.Table)
	}

	r := &Report{
		GeneratedAt: now,
		DataSummary: DataSummary{
			TotalRecords:   result.Table.Len(),
			DroppedRecords: len(result.Dropped),
			Block:          result.Block,
		},
		Summary: summary,
	}

	if result.Model != nil {
		r.Model = ModelSection{
			Accuracy:   result.Accuracy,
			Evaluation: result.Model.Evaluation(),
			Samples:    result.Model.Samples(),
			Depth:      result.Model.Depth(),
			Leaves:     result.Model.Leaves(),
		}
	}

	for _, d := range result.Dropped {
		r.Dropped = append(r.Dropped, DroppedRow{
			Index:  d.Index,
			Name:   d.Name,
			Field:  d.Field,
			Reason: d.Reason,
		})
	}
	return r
}

// BuildFromSnapshot assembles a report from an archived snapshot.
// Tree shape and dropped record details are not archived, so those sections stay empty.
func BuildFromSnapshot(snap *domain.Snapshot, now time.Time) *Report {
	table := snap.Table()
	return &Report{
		GeneratedAt: now,
		RunID:       snap.RunID,
		DataSummary: DataSummary{
			TotalRecords:   table.Len(),
			DroppedRecords: snap.Dropped,
			Block:          snap.Block,
		},
		Model: ModelSection{
			Accuracy:   snap.Accuracy,
			Evaluation: snap.Evaluation,
		},
		Summary: metrics.Summarize(table),
	}
}

// WriteFiles writes the Markdown report and the scored CSV into dir, creating it if needed.
func WriteFiles(dir string, r *Report, table *domain.ScoredTable) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	mdPath := filepath.Join(dir, MarkdownFile)
	if err := os.WriteFile(mdPath, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", mdPath, err)
	}

	csvData, err := RenderCSV(table)
	if err != nil {
		return err
	}
	csvPath := filepath.Join(dir, CSVFile)
	if err := os.WriteFile(csvPath, []byte(csvData), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", csvPath, err)
	}
	return nil
}

// Generator produces report files for pipeline results.
type Generator struct {
	outputDir string
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a generator writing into outputDir.
func NewGenerator(outputDir string) *Generator {
	return &Generator{
		outputDir: outputDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for result and writes both output files.
func (g *Generator) Generate(result *orchestrator.RunResult, runID string) (*Report, error) {
	r := Build(result, nil, g.now())
	r.RunID = runID
	if err := WriteFiles(g.outputDir, r, result.Table); err != nil {
		return nil, err
	}
	return r, nil
}
