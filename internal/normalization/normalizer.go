// Package normalization turns loosely typed data-source records into
// uniform protocol rows ready for scoring.
package normalization

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/logging"
)

// Field aliases accepted from upstream sources, canonical name first.
var (
	nameAliases        = []string{"name", "id", "symbol"}
	marketCapAliases   = []string{"market_cap", "marketCap", "mcap"}
	totalVolumeAliases = []string{"total_volume", "totalVolume", "volume", "volume_24h"}
	volatilityAliases  = []string{"volatility", "vol"}
)

// Normalizer cleans raw records into ProtocolRecords.
type Normalizer struct {
	logger logrus.FieldLogger
}

// NewNormalizer creates a normalizer. A nil logger discards output.
func NewNormalizer(logger logrus.FieldLogger) *Normalizer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Normalizer{logger: logger}
}

// Normalize is a convenience wrapper around a silent Normalizer.
func Normalize(raw []domain.RawRecord) ([]domain.ProtocolRecord, []*MalformedRecordError) {
	return NewNormalizer(nil).Normalize(raw)
}

// Normalize coerces every raw record, preserving input order.
// Records with a missing, unparsable or non-finite numeric field, or a negative
// market cap or volume, are excluded and returned as MalformedRecordErrors.
func (n *Normalizer) Normalize(raw []domain.RawRecord) ([]domain.ProtocolRecord, []*MalformedRecordError) {
	out := make([]domain.ProtocolRecord, 0, len(raw))
	var dropped []*MalformedRecordError

	for i, r := range raw {
		rec, err := normalizeOne(i, r)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"index":  err.Index,
				"name":   err.Name,
				"field":  err.Field,
				"reason": err.Reason,
			}).Debug("dropping malformed record")
			dropped = append(dropped, err)
			continue
		}
		out = append(out, rec)
	}

	return out, dropped
}

func normalizeOne(index int, raw domain.RawRecord) (domain.ProtocolRecord, *MalformedRecordError) {
	rec := domain.ProtocolRecord{Name: extractName(raw)}

	fields := []struct {
		name    string
		aliases []string
		dst     *float64
		nonNeg  bool
	}{
		{"market_cap", marketCapAliases, &rec.MarketCap, true},
		{"total_volume", totalVolumeAliases, &rec.TotalVolume, true},
		{"volatility", volatilityAliases, &rec.Volatility, false},
	}

	for _, f := range fields {
		v, ok := lookup(raw, f.aliases)
		if !ok {
			return rec, &MalformedRecordError{Index: index, Name: rec.Name, Field: f.name, Reason: errMissing.Error()}
		}
		val, err := coerceFloat(v)
		if err != nil {
			return rec, &MalformedRecordError{Index: index, Name: rec.Name, Field: f.name, Reason: err.Error()}
		}
		if f.nonNeg && val < 0 {
			return rec, &MalformedRecordError{
				Index:  index,
				Name:   rec.Name,
				Field:  f.name,
				Reason: fmt.Sprintf("%v: %g", errNegative, val),
			}
		}
		*f.dst = val
	}

	return rec, nil
}

func extractName(raw domain.RawRecord) string {
	v, ok := lookup(raw, nameAliases)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// IsMalformed reports whether err is a MalformedRecordError.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}
