package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/normalization"
	"defi-risk-lab/internal/reporting"
)

var (
	marketCapFlag = &cli.FloatFlag{
		Name:     "market-cap",
		Usage:    "Market capitalization in USD",
		Required: true,
	}

	volumeFlag = &cli.FloatFlag{
		Name:     "volume",
		Usage:    "Trailing trading volume in USD",
		Required: true,
	}

	volatilityFlag = &cli.FloatFlag{
		Name:     "volatility",
		Usage:    "Volatility, expected in [0,1]",
		Required: true,
	}

	scoreCmd = &cli.Command{
		Name:   "score",
		Usage:  "Normalize and score a dataset, print scored CSV",
		Action: cmdScore,
		Flags: []cli.Flag{
			inputFlag,
		},
	}

	trainCmd = &cli.Command{
		Name:   "train",
		Usage:  "Train the classifier on a dataset, print model statistics",
		Action: cmdTrain,
		Flags: []cli.Flag{
			inputFlag,
			maxDepthFlag,
			holdoutFlag,
			jsonFlag,
		},
	}

	predictCmd = &cli.Command{
		Name:   "predict",
		Usage:  "Train on a dataset, then label one protocol",
		Action: cmdPredict,
		Flags: []cli.Flag{
			inputFlag,
			maxDepthFlag,
			holdoutFlag,
			marketCapFlag,
			volumeFlag,
			volatilityFlag,
			jsonFlag,
		},
	}
)

// cmdScore stops before training, so single-class datasets still score.
func cmdScore(ctx context.Context, cmd *cli.Command) error {
	scorer, err := scorerFor(cmd)
	if err != nil {
		return fmt.Errorf("load scoring config: %w", err)
	}
	raw, err := source(cmd).Fetch(ctx)
	if err != nil {
		return err
	}
	records, dropped := normalization.NewNormalizer(logger).Normalize(raw)
	if len(dropped) > 0 {
		fmt.Fprintf(os.Stderr, "dropped %d malformed records\n", len(dropped))
	}

	out, err := reporting.RenderCSV(domain.NewScoredTable(scorer.Score(records)))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(os.Stdout, out)
	return err
}

type trainOutput struct {
	Samples    int                `json:"samples"`
	Dropped    int                `json:"dropped"`
	Accuracy   float64            `json:"accuracy"`
	Evaluation string             `json:"evaluation"`
	Depth      int                `json:"depth"`
	Leaves     int                `json:"leaves"`
	Classes    []domain.RiskLabel `json:"classes"`
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	_, result, err := runPipeline(ctx, cmd)
	if err != nil {
		return err
	}
	m := result.Model
	out := trainOutput{
		Samples:    m.Samples(),
		Dropped:    len(result.Dropped),
		Accuracy:   result.Accuracy,
		Evaluation: m.Evaluation(),
		Depth:      m.Depth(),
		Leaves:     m.Leaves(),
		Classes:    m.Classes(),
	}

	if cmd.Bool(jsonFlag.Name) {
		return printJSON(out)
	}
	fmt.Printf("samples:    %d\n", out.Samples)
	fmt.Printf("dropped:    %d\n", out.Dropped)
	fmt.Printf("accuracy:   %.4f (%s)\n", out.Accuracy, out.Evaluation)
	fmt.Printf("depth:      %d\n", out.Depth)
	fmt.Printf("leaves:     %d\n", out.Leaves)
	fmt.Printf("classes:    %v\n", out.Classes)
	if out.Evaluation == domain.EvaluationSelf {
		fmt.Println("note:       accuracy measured on training data")
	}
	return nil
}

type predictOutput struct {
	RiskLabel  domain.RiskLabel `json:"risk_label"`
	Confidence float64          `json:"confidence"`
	RiskScore  float64          `json:"risk_score"`
	ScoreLabel domain.RiskLabel `json:"score_label"`
}

func cmdPredict(ctx context.Context, cmd *cli.Command) error {
	fv := domain.FeatureVector{
		MarketCap:   cmd.Float(marketCapFlag.Name),
		TotalVolume: cmd.Float(volumeFlag.Name),
		Volatility:  cmd.Float(volatilityFlag.Name),
	}
	if err := fv.Validate(); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	orch, result, err := runPipeline(ctx, cmd)
	if err != nil {
		return err
	}
	pred, err := result.Model.Classify(fv)
	if err != nil {
		return err
	}

	scorer := orch.Scorer()
	score := scorer.RiskScore(fv)
	out := predictOutput{
		RiskLabel:  pred.Label,
		Confidence: pred.Confidence,
		RiskScore:  score,
		ScoreLabel: scorer.Label(score),
	}

	if cmd.Bool(jsonFlag.Name) {
		return printJSON(out)
	}
	fmt.Printf("%s (confidence %.2f, score %.2f = %s)\n", out.RiskLabel, out.Confidence, out.RiskScore, out.ScoreLabel)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
