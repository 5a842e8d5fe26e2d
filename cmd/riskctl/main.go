// Package main provides riskctl, a command line client for scoring, training and
// predicting on protocol datasets without running the server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"defi-risk-lab/internal/classifier"
	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/normalization"
	"defi-risk-lab/internal/orchestrator"
	"defi-risk-lab/internal/pipeline"
	"defi-risk-lab/internal/scoring"
)

var (
	name    = "riskctl"
	version = "v0.0.1-default"
	commit  = ""

	logger *logrus.Logger

	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "warn",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}

	scoringConfigFlag = &cli.StringFlag{
		Name:    "scoring-config",
		Usage:   "YAML file with score weights and label thresholds (optional)",
		Sources: cli.EnvVars("SCORING_CONFIG"),
	}

	inputFlag = &cli.StringFlag{
		Name:  "input",
		Usage: "JSON file with raw protocol records (built-in fixtures when empty)",
	}

	maxDepthFlag = &cli.IntFlag{
		Name:    "max-depth",
		Usage:   "Maximum tree depth, 0 grows to purity",
		Sources: cli.EnvVars("CLASSIFIER_MAX_DEPTH"),
	}

	holdoutFlag = &cli.IntFlag{
		Name:    "holdout-every",
		Usage:   "Hold out every k-th record for evaluation, 0 evaluates on training data",
		Sources: cli.EnvVars("CLASSIFIER_HOLDOUT_EVERY"),
	}

	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of text",
	}
)

func main() {
	cmd := &cli.Command{
		Name:    name,
		Version: fmt.Sprintf("%s - (commit: %s)", version, commit),
		Usage:   "Score, train and predict DeFi protocol risk",
		Flags: []cli.Flag{
			logLevelFlag,
			scoringConfigFlag,
		},
		Commands: []*cli.Command{
			scoreCmd,
			trainCmd,
			predictCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logger = logging.NewWithOutput(os.Stderr, cmd.String(logLevelFlag.Name), "text")
			return ctx, nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

// source returns the dataset named by --input, or the built-in fixtures.
func source(cmd *cli.Command) datasource.DataSource {
	if path := cmd.String(inputFlag.Name); path != "" {
		return &datasource.File{Path: path}
	}
	return &datasource.Static{Records: pipeline.Fixtures()}
}

// runPipeline runs normalize, score and train over the --input dataset.
func runPipeline(ctx context.Context, cmd *cli.Command) (*orchestrator.Orchestrator, *orchestrator.RunResult, error) {
	scorer, err := scorerFor(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("load scoring config: %w", err)
	}

	cfg := classifier.DefaultConfig()
	cfg.MaxDepth = cmd.Int(maxDepthFlag.Name)
	cfg.HoldoutEvery = cmd.Int(holdoutFlag.Name)

	orch := orchestrator.New(orchestrator.Options{
		Scorer:     scorer,
		Classifier: classifier.New(cfg),
		Normalizer: normalization.NewNormalizer(logger),
		Source:     source(cmd),
		Logger:     logger,
	})
	result, err := orch.RunFromSource(ctx)
	if err != nil {
		return nil, nil, err
	}
	return orch, result, nil
}

func scorerFor(cmd *cli.Command) (*scoring.Scorer, error) {
	path := cmd.String(scoringConfigFlag.Name)
	if path == "" {
		return scoring.NewDefaultScorer(), nil
	}
	sc, err := scoring.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return scoring.NewScorer(sc)
}
