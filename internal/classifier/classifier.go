// Package classifier fits a deterministic decision tree mapping protocol
// features to risk labels.
package classifier

import (
	"fmt"
	"sync"

	"defi-risk-lab/internal/domain"
)

// Config controls tree growth and evaluation.
type Config struct {
	MaxDepth       int // 0 grows until leaves are pure
	MinSamples     int // minimum training samples
	MinSamplesLeaf int
	HoldoutEvery   int // k > 1 holds out every k-th sample for evaluation
}

// DefaultConfig grows to purity and evaluates on the training data.
func DefaultConfig() Config {
	return Config{MinSamples: 2, MinSamplesLeaf: 1}
}

func (c Config) normalized() Config {
	if c.MinSamples < 2 {
		c.MinSamples = 2
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = 1
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	if c.HoldoutEvery < 2 {
		c.HoldoutEvery = 0
	}
	return c
}

// Classifier trains models and serves predictions from the latest one.
type Classifier struct {
	cfg Config

	mu      sync.RWMutex
	current *Model
}

// New creates a classifier. Out of range config values are clamped to defaults.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.normalized()}
}

// Config returns the effective configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Train fits a new model and makes it current.
// Returns the model and its accuracy under the configured evaluation mode.
func (c *Classifier) Train(features []domain.FeatureVector, labels []domain.RiskLabel) (*Model, float64, error) {
	model, err := Train(c.cfg, features, labels)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	c.current = model
	c.mu.Unlock()

	return model, model.accuracy, nil
}

// Model returns the current model, or nil before the first successful Train.
func (c *Classifier) Model() *Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Predict labels inputs with the current model.
func (c *Classifier) Predict(inputs []domain.FeatureVector) ([]domain.RiskLabel, error) {
	return Predict(c.Model(), inputs)
}

// Train fits a model with cfg without touching any Classifier state.
func Train(cfg Config, features []domain.FeatureVector, labels []domain.RiskLabel) (*Model, error) {
	cfg = cfg.normalized()

	if len(features) != len(labels) {
		return nil, fmt.Errorf("%w: %d features, %d labels", ErrLengthMismatch, len(features), len(labels))
	}

	classIdx := make([]int, len(labels))
	for i := range features {
		if err := features[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ErrInvalidSample, i, err)
		}
		if !labels[i].IsValid() {
			return nil, fmt.Errorf("%w: sample %d: unknown label %q", ErrInvalidSample, i, labels[i])
		}
		classIdx[i] = labels[i].Severity()
	}

	trainIdx, evalIdx := split(len(features), cfg.HoldoutEvery)
	evaluation := domain.EvaluationSelf
	if cfg.HoldoutEvery > 1 {
		evaluation = domain.EvaluationHoldout
	}

	classes := distinctClasses(classIdx, trainIdx)
	if len(trainIdx) < cfg.MinSamples {
		return nil, &InsufficientDataError{
			Samples:    len(trainIdx),
			Classes:    len(classes),
			MinSamples: cfg.MinSamples,
			Reason:     "too few samples",
		}
	}
	if len(classes) < 2 {
		return nil, &InsufficientDataError{
			Samples:    len(trainIdx),
			Classes:    len(classes),
			MinSamples: cfg.MinSamples,
			Reason:     "need at least two distinct labels",
		}
	}
	if len(evalIdx) == 0 {
		return nil, &InsufficientDataError{
			Samples:    len(trainIdx),
			Classes:    len(classes),
			MinSamples: cfg.MinSamples,
			Reason:     "holdout split left no evaluation samples",
		}
	}

	b := &builder{
		features:       features,
		labels:         classIdx,
		maxDepth:       cfg.MaxDepth,
		minSamplesLeaf: cfg.MinSamplesLeaf,
	}
	root := b.grow(trainIdx, 0)

	correct := 0
	for _, i := range evalIdx {
		if root.predict(features[i]).label == labels[i] {
			correct++
		}
	}

	return &Model{
		root:       root,
		accuracy:   float64(correct) / float64(len(evalIdx)),
		samples:    len(trainIdx),
		classes:    classes,
		depth:      root.depth(),
		leaves:     root.leaves(),
		evaluation: evaluation,
	}, nil
}

// split returns training and evaluation indices. Without holdout both are the full set.
func split(n, every int) (train, eval []int) {
	if every < 2 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, all
	}
	for i := 0; i < n; i++ {
		if i%every == every-1 {
			eval = append(eval, i)
		} else {
			train = append(train, i)
		}
	}
	return train, eval
}

func distinctClasses(classIdx, idx []int) []domain.RiskLabel {
	var seen [numClasses]bool
	for _, i := range idx {
		seen[classIdx[i]] = true
	}
	var out []domain.RiskLabel
	for k, ok := range seen {
		if ok {
			out = append(out, severityLabels[k])
		}
	}
	return out
}
