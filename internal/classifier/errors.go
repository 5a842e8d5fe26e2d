package classifier

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotTrained is returned when predicting without a trained model.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrInsufficientData matches every *InsufficientDataError via errors.Is.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrLengthMismatch is returned when features and labels differ in length.
	ErrLengthMismatch = errors.New("features and labels length mismatch")

	// ErrInvalidSample is returned for a non-finite feature vector or unknown label.
	ErrInvalidSample = errors.New("invalid sample")
)

// InsufficientDataError reports why a training set cannot be fit.
type InsufficientDataError struct {
	Samples    int
	Classes    int
	MinSamples int
	Reason     string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %s (samples=%d, classes=%d, min_samples=%d)",
		e.Reason, e.Samples, e.Classes, e.MinSamples)
}

// Is reports ErrInsufficientData as a match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
