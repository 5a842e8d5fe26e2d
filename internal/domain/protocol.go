package domain

import (
	"fmt"
	"math"
)

// RawRecord is one loosely typed protocol record as returned by a data source.
// Values may be numbers, json.Number or strings.
type RawRecord map[string]any

// Clone returns a shallow copy of the record.
func (r RawRecord) Clone() RawRecord {
	if r == nil {
		return nil
	}
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ProtocolRecord is one DeFi protocol at a point in time.
// All numeric fields are finite after normalization.
type ProtocolRecord struct {
	Name        string  `json:"name"`
	MarketCap   float64 `json:"market_cap"`   // USD, >= 0
	TotalVolume float64 `json:"total_volume"` // USD, >= 0, trailing window
	Volatility  float64 `json:"volatility"`   // expected [0,1], not enforced
}

// Features projects the record onto the classifier feature space.
func (p ProtocolRecord) Features() FeatureVector {
	return FeatureVector{
		MarketCap:   p.MarketCap,
		TotalVolume: p.TotalVolume,
		Volatility:  p.Volatility,
	}
}

// FeatureVector is the {market_cap, total_volume, volatility} triple.
type FeatureVector struct {
	MarketCap   float64 `json:"market_cap"`
	TotalVolume float64 `json:"total_volume"`
	Volatility  float64 `json:"volatility"`
}

// NumFeatures is the dimensionality of FeatureVector.
const NumFeatures = 3

// FeatureNames lists feature columns in Value index order.
var FeatureNames = [NumFeatures]string{"market_cap", "total_volume", "volatility"}

// Value returns the i-th feature in FeatureNames order.
func (f FeatureVector) Value(i int) float64 {
	switch i {
	case 0:
		return f.MarketCap
	case 1:
		return f.TotalVolume
	case 2:
		return f.Volatility
	}
	panic(fmt.Sprintf("feature index %d out of range", i))
}

// Validate checks that all values are finite and that market cap and volume are non-negative.
func (f FeatureVector) Validate() error {
	for i := 0; i < NumFeatures; i++ {
		v := f.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", FeatureNames[i])
		}
	}
	if f.MarketCap < 0 {
		return fmt.Errorf("market_cap is negative")
	}
	if f.TotalVolume < 0 {
		return fmt.Errorf("total_volume is negative")
	}
	return nil
}
