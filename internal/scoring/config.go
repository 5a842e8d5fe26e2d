package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when weights or thresholds are inconsistent.
var ErrInvalidConfig = errors.New("invalid scoring config")

// Default formula parameters.
const (
	DefaultVolatilityWeight = 0.6
	DefaultLiquidityWeight  = 0.4
	DefaultLiquidityPivot   = 0.1
	DefaultLowUpper         = 40.0
	DefaultMediumUpper      = 70.0

	// MaxScore is the upper bound of the score range and the fallback for zero market cap.
	MaxScore = 100.0
)

// Config holds the composite score weights and label thresholds.
type Config struct {
	VolatilityWeight float64    `yaml:"volatility_weight"`
	LiquidityWeight  float64    `yaml:"liquidity_weight"`
	LiquidityPivot   float64    `yaml:"liquidity_pivot"` // volume/market_cap ratio at which liquidity risk halves
	Thresholds       Thresholds `yaml:"thresholds"`
}

// DefaultConfig returns the documented default formula.
func DefaultConfig() Config {
	return Config{
		VolatilityWeight: DefaultVolatilityWeight,
		LiquidityWeight:  DefaultLiquidityWeight,
		LiquidityPivot:   DefaultLiquidityPivot,
		Thresholds: Thresholds{
			LowUpper:    DefaultLowUpper,
			MediumUpper: DefaultMediumUpper,
		},
	}
}

// Validate checks weights sum to 1, the pivot is positive and thresholds are ordered.
func (c Config) Validate() error {
	if c.VolatilityWeight < 0 || c.LiquidityWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidConfig)
	}
	if math.Abs(c.VolatilityWeight+c.LiquidityWeight-1) > 1e-9 {
		return fmt.Errorf("%w: weights must sum to 1, got %g", ErrInvalidConfig, c.VolatilityWeight+c.LiquidityWeight)
	}
	if !(c.LiquidityPivot > 0) || math.IsInf(c.LiquidityPivot, 0) {
		return fmt.Errorf("%w: liquidity_pivot must be a positive finite number", ErrInvalidConfig)
	}
	return c.Thresholds.Validate()
}

// LoadConfig reads a YAML file. Keys absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scoring config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
