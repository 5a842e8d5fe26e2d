// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"defi-risk-lab/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(created_at_unix_nano|name_0|name_1|...)
// Names are taken in table order. Returns hex-encoded hash (64 characters).
func ComputeRunID(createdAt time.Time, records []domain.ScoredRecord) string {
	var b strings.Builder
	b.WriteString(createdAt.UTC().Format(time.RFC3339Nano))
	for _, r := range records {
		b.WriteByte('|')
		b.WriteString(r.Name)
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}
