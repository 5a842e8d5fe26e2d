package classifier

import (
	"fmt"

	"defi-risk-lab/internal/domain"
)

// Model is an immutable trained decision tree.
type Model struct {
	root       *node
	accuracy   float64
	samples    int
	classes    []domain.RiskLabel
	depth      int
	leaves     int
	evaluation string
}

// Prediction is a label plus the share of the leaf's training samples carrying it.
type Prediction struct {
	Label      domain.RiskLabel `json:"label"`
	Confidence float64          `json:"confidence"`
}

// Accuracy is measured on the data named by Evaluation.
func (m *Model) Accuracy() float64 { return m.accuracy }

// Samples is the number of samples the tree was fit on.
func (m *Model) Samples() int { return m.samples }

// Classes returns the labels seen in training, ordered by severity.
func (m *Model) Classes() []domain.RiskLabel {
	out := make([]domain.RiskLabel, len(m.classes))
	copy(out, m.classes)
	return out
}

func (m *Model) Depth() int { return m.depth }

func (m *Model) Leaves() int { return m.leaves }

// Evaluation is domain.EvaluationSelf or domain.EvaluationHoldout.
func (m *Model) Evaluation() string { return m.evaluation }

// Classify labels a single input.
func (m *Model) Classify(fv domain.FeatureVector) (Prediction, error) {
	if m == nil || m.root == nil {
		return Prediction{}, ErrModelNotTrained
	}
	if err := fv.Validate(); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	leaf := m.root.predict(fv)
	return Prediction{Label: leaf.label, Confidence: leaf.confidence}, nil
}

// Predict labels every input, in order.
func (m *Model) Predict(inputs []domain.FeatureVector) ([]domain.RiskLabel, error) {
	if m == nil || m.root == nil {
		return nil, ErrModelNotTrained
	}
	out := make([]domain.RiskLabel, len(inputs))
	for i, fv := range inputs {
		if err := fv.Validate(); err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrInvalidSample, i, err)
		}
		out[i] = m.root.predict(fv).label
	}
	return out, nil
}

// Predict labels inputs with model. A nil model yields ErrModelNotTrained.
func Predict(model *Model, inputs []domain.FeatureVector) ([]domain.RiskLabel, error) {
	return model.Predict(inputs)
}
