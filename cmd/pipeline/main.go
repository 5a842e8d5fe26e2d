// Package main provides the one-shot batch entry point.
// Executes: fetch → normalization → scoring → training → sufficiency → reporting
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/config"
	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/datasource/chain"
	"defi-risk-lab/internal/datasource/market"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/normalization"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/pipeline"
	"defi-risk-lab/internal/reporting"
	"defi-risk-lab/internal/scoring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags
	input := flag.String("input", "", "JSON file with raw protocol records (live market data when empty)")
	fixtures := flag.Bool("fixtures", false, "Use the built-in fixture dataset")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	minRecords := flag.Int("min-records", pipeline.DefaultMinRecords, "Sufficiency: minimum scored records")
	maxDropRate := flag.Float64("max-drop-rate", pipeline.DefaultMaxDropRate, "Sufficiency: maximum dropped record share")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Create context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.PipelineTimeout)
	defer cancel()

	var source datasource.DataSource
	switch {
	case *fixtures:
		source = &datasource.Static{Records: pipeline.Fixtures()}
	case *input != "":
		source = &datasource.File{Path: *input}
	default:
		source = market.NewClient(cfg.MarketAPIURL,
			market.WithAPIKey(cfg.MarketAPIKey),
			market.WithCategory(cfg.MarketCategory),
			market.WithPerPage(cfg.MarketPerPage),
			market.WithLogger(logger),
		)
	}

	var chainReader datasource.ChainReader
	if cfg.EthRPCURL != "" {
		reader, err := chain.Dial(ctx, cfg.EthRPCURL)
		if err != nil {
			logger.WithError(err).Warn("ethereum RPC unavailable, latest block disabled")
		} else {
			defer reader.Close()
			chainReader = reader
		}
	}

	scorer := scoring.NewDefaultScorer()
	if cfg.ScoringConfigPath != "" {
		sc, err := scoring.LoadConfig(cfg.ScoringConfigPath)
		if err != nil {
			logger.WithError(err).Fatal("load scoring config")
		}
		if scorer, err = scoring.NewScorer(sc); err != nil {
			logger.WithError(err).Fatal("scoring config")
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		Scorer: scorer,
		Classifier: classifier.New(classifier.Config{
			MaxDepth:     cfg.ClassifierMaxDepth,
			MinSamples:   cfg.ClassifierMinSamples,
			HoldoutEvery: cfg.ClassifierHoldoutEvery,
		}),
		Normalizer: normalization.NewNormalizer(logger),
		Source:     source,
		Chain:      chainReader,
		Logger:     logger,
	})

	p := pipeline.New(orch, *outputDir).
		WithChecker(pipeline.NewSufficiencyChecker().
			WithMinRecords(*minRecords).
			WithMaxDropRate(*maxDropRate)).
		WithLogger(logger)

	result, err := p.RunFromSource(ctx)
	if err != nil {
		logger.WithError(err).Fatal("pipeline failed")
	}

	fmt.Println("Pipeline completed:")
	fmt.Printf("  Run: %s\n", result.RunID)
	fmt.Printf("  Scored records: %d\n", result.Run.Table.Len())
	fmt.Printf("  Dropped records: %d\n", len(result.Run.Dropped))
	fmt.Printf("  Accuracy: %.4f (%s)\n", result.Run.Accuracy, result.Run.Model.Evaluation())
	for _, d := range result.Report.Summary.Distribution {
		fmt.Printf("  %-6s %d (%.1f%%)\n", d.Label, d.Count, d.Share*100)
	}
	if !result.Sufficiency.AllPass {
		fmt.Println("  Data sufficiency: FAILED (see report)")
	}
	fmt.Printf("  - %s/%s\n", *outputDir, reporting.MarkdownFile)
	fmt.Printf("  - %s/%s\n", *outputDir, reporting.CSVFile)
}
