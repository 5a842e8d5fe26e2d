package normalization

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errMissing    = errors.New("missing")
	errUnparsable = errors.New("unparsable")
	errNotFinite  = errors.New("not finite")
	errNegative   = errors.New("negative")
)

var (
	nullTokens    = map[string]struct{}{"": {}, "n/a": {}, "na": {}, "null": {}, "nil": {}, "none": {}, "nan": {}, "-": {}}
	stripReplacer = strings.NewReplacer("$", "", ",", "", "_", "", " ", "")
)

// coerceFloat converts a loosely typed value to a finite float64.
// Strings may carry a currency sign, thousands separators or a percent suffix.
func coerceFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, errMissing
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errUnparsable, x.String())
		}
		f = d.InexactFloat64()
	case string:
		parsed, err := parseNumericString(x)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		n, ok := numericValue(v)
		if !ok {
			return 0, fmt.Errorf("%w: unsupported type %T", errUnparsable, v)
		}
		f = n
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// numericValue converts any integer or floating point kind, named types included.
func numericValue(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if _, isNull := nullTokens[strings.ToLower(trimmed)]; isNull {
		return 0, fmt.Errorf("%w: %q", errUnparsable, s)
	}

	percent := strings.HasSuffix(trimmed, "%")
	trimmed = strings.TrimSuffix(trimmed, "%")
	trimmed = stripReplacer.Replace(trimmed)

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errUnparsable, s)
	}
	if percent {
		d = d.Div(decimal.NewFromInt(100))
	}
	return d.InexactFloat64(), nil
}

// lookup returns the first present value among aliases.
func lookup(raw map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			return v, true
		}
	}
	return nil, false
}
