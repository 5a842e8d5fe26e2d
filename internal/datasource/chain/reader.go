// Package chain reads Ethereum chain context for pipeline runs.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"defi-risk-lab/internal/datasource"
	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/observability"
)

// ErrEmptyURL is returned by Dial when no RPC URL is configured.
var ErrEmptyURL = errors.New("ethereum rpc url is empty")

const sourceName = "ethereum"

// HeaderReader is the subset of ethclient.Client the reader needs.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Reader implements datasource.ChainReader.
type Reader struct {
	headers HeaderReader
	closer  func()
	metrics *observability.Metrics
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Reader, error) {
	if rpcURL == "" {
		return nil, ErrEmptyURL
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &Reader{headers: client, closer: client.Close}, nil
}

// NewReader wraps an existing header source.
func NewReader(headers HeaderReader) *Reader {
	return &Reader{headers: headers}
}

// WithMetrics sets the metrics sink and returns r.
func (r *Reader) WithMetrics(m *observability.Metrics) *Reader {
	r.metrics = m
	return r
}

// LatestBlock returns the head block's number, hash and timestamp.
func (r *Reader) LatestBlock(ctx context.Context) (*domain.BlockInfo, error) {
	start := time.Now()
	header, err := r.headers.HeaderByNumber(ctx, nil)
	r.metrics.RecordSourceCall(sourceName, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header == nil || header.Number == nil {
		return nil, errors.New("latest header missing block number")
	}

	info := &domain.BlockInfo{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash().Hex(),
		Timestamp: time.Unix(int64(header.Time), 0).UTC(),
	}
	r.metrics.RecordBlock(info.Number)
	return info, nil
}

// Close releases the underlying connection.
func (r *Reader) Close() {
	if r.closer != nil {
		r.closer()
	}
}

var _ datasource.ChainReader = (*Reader)(nil)
