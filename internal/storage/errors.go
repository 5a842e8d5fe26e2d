package storage

import (
	"errors"
	"fmt"

	"defi-risk-lab/internal/domain"
)

// Archive errors. Snapshots and scored-record history are append-only.
var (
	// ErrNotFound is returned when a run id or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a run id is archived twice.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when a run id, snapshot or limit is unusable.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidateRunID rejects an empty run id.
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: empty run id", ErrInvalidInput)
	}
	return nil
}

// ValidateSnapshot rejects nil snapshots and snapshots without a run id or creation time.
func ValidateSnapshot(s *domain.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidInput)
	}
	if err := ValidateRunID(s.RunID); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("%w: snapshot %s has no creation time", ErrInvalidInput, s.RunID)
	}
	return nil
}

// ValidateLimit rejects non-positive result limits.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidInput, limit)
	}
	return nil
}
