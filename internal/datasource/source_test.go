package datasource

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-risk-lab/internal/domain"
)

func TestStatic_FetchReturnsCopies(t *testing.T) {
	src := &Static{Records: []domain.RawRecord{
		{"name": "Aave", "market_cap": 1e9},
	}}

	first, err := src.Fetch(context.Background())
	require.NoError(t, err)
	first[0]["name"] = "mutated"

	second, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Aave", second[0]["name"])
}

func TestStatic_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Static{}).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFile_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocols.json")
	body := `[
		{"name": "Uniswap", "market_cap": 5000000000, "total_volume": "1,200,000", "volatility": 0.12},
		{"name": "Curve", "market_cap": "N/A", "total_volume": 10, "volatility": 0.3}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	records, err := (&File{Path: path}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Uniswap", records[0]["name"])
	assert.Equal(t, json.Number("5000000000"), records[0]["market_cap"])
	assert.Equal(t, "1,200,000", records[0]["total_volume"])
	assert.Equal(t, "N/A", records[1]["market_cap"])
}

func TestFile_Errors(t *testing.T) {
	_, err := (&File{}).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = (&File{Path: filepath.Join(t.TempDir(), "missing.json")}).Fetch(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not": "an array"}`), 0o644))
	_, err = (&File{Path: bad}).Fetch(context.Background())
	assert.Error(t, err)
}
