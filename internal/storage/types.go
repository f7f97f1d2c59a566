package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the local job ledger.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// JobRecord is one job this process scheduled, as confirmed by the service.
// Keep it compact and schema-stable.
type JobRecord struct {
	JobID      string    `json:"job_id"`
	JobType    string    `json:"job_type"`
	EndpointID string    `json:"endpoint_id"`
	CreatedAt  time.Time `json:"created_at"`
}
