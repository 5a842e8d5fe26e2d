package normalization

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord matches every *MalformedRecordError via errors.Is.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError describes one raw record excluded from normalization.
type MalformedRecordError struct {
	Index  int    // position in the raw input
	Name   string // protocol name if present
	Field  string // canonical field name
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("malformed record %d (%s): %s: %s", e.Index, e.Name, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Is reports ErrMalformedRecord as a match.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
