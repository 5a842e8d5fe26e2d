package domain

import "time"

// BlockInfo describes the latest observed chain block.
type BlockInfo struct {
	Number    uint64    `json:"number"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}
