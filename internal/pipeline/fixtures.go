package pipeline

import "defi-risk-lab/internal/domain"

// Fixtures returns a small deterministic dataset covering every risk label,
// mixed numeric encodings and two malformed records.
// Used by cmd/pipeline --fixtures and by tests.
func Fixtures() []domain.RawRecord {
	return []domain.RawRecord{
		// Low risk: large, liquid, calm
		{"name": "Lido", "market_cap": 18_000_000_000.0, "total_volume": 110_000_000.0, "volatility": 0.02},
		{"name": "Uniswap", "market_cap": "4,000,000,000", "total_volume": 200_000_000.0, "volatility": 0.05},
		{"name": "Aave", "market_cap": 1_500_000_000.0, "total_volume": "$120,000,000", "volatility": "0.03"},
		{"name": "Maker", "market_cap": 1_400_000_000, "total_volume": 60_000_000, "volatility": 0.04},
		{"name": "Curve", "market_cap": 500_000_000.0, "total_volume": 90_000_000.0, "volatility": 0.08},
		{"name": "Compound", "market_cap": 400_000_000.0, "total_volume": 30_000_000.0, "volatility": 0.06},
		{"name": "PancakeSwap", "market_cap": 600_000_000.0, "total_volume": 150_000_000.0, "volatility": 0.12},

		// Medium risk: volatile
		{"name": "GMX", "market_cap": 300_000_000.0, "total_volume": 20_000_000.0, "volatility": 0.35},
		{"name": "dYdX", "market_cap": 500_000_000.0, "total_volume": 120_000_000.0, "volatility": 0.6},
		{"name": "SushiSwap", "market_cap": 200_000_000.0, "total_volume": 30_000_000.0, "volatility": 0.7},

		// High risk: thin or unpriced
		{"name": "TinyYield", "market_cap": 5_000_000.0, "total_volume": 10_000.0, "volatility": 0.9},
		{"name": "ZeroCap", "market_cap": 0.0, "total_volume": 1_000.0, "volatility": 0.2},

		// Malformed
		{"name": "Unlisted", "market_cap": "N/A", "total_volume": 1_000.0, "volatility": 0.5},
		{"name": "NoVolatility", "market_cap": 1_000_000.0, "total_volume": 1_000.0},
	}
}
