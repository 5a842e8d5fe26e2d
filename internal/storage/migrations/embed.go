// Package migrations applies the versioned goose migrations for the snapshot
// archive (PostgreSQL) and the per-protocol score history (ClickHouse).
package migrations

import "embed"

// PostgresFS holds the risk_snapshots schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the scored_records schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
