// Package datasource defines where raw protocol records and chain context come from.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"defi-risk-lab/internal/domain"
)

// ErrEmptyPath is returned by File when no path is configured.
var ErrEmptyPath = errors.New("data source path is empty")

// DataSource fetches one batch of raw protocol records.
type DataSource interface {
	Fetch(ctx context.Context) ([]domain.RawRecord, error)
}

// ChainReader reports the latest block of a chain.
type ChainReader interface {
	LatestBlock(ctx context.Context) (*domain.BlockInfo, error)
}

// Static serves a fixed set of records. Each Fetch returns fresh copies.
type Static struct {
	Records []domain.RawRecord
}

// Fetch returns copies of the configured records.
func (s *Static) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.RawRecord, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Clone()
	}
	return out, nil
}

// File reads a JSON array of objects from Path on every Fetch.
// Numbers are kept as json.Number so normalization sees their exact text.
type File struct {
	Path string
}

// Fetch reads and decodes the file.
func (f *File) Fetch(ctx context.Context) ([]domain.RawRecord, error) {
	if f.Path == "" {
		return nil, ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()

	dec := json.NewDecoder(fh)
	dec.UseNumber()

	var records []domain.RawRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return records, nil
}

var (
	_ DataSource = (*Static)(nil)
	_ DataSource = (*File)(nil)
)
