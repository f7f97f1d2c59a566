// Package storage is the daemon's local bookkeeping layer.
//
// It remembers which jobs this process scheduled (so operators can list and
// delete them later) and short-lived dedup keys used to suppress webhook
// replays. Job state itself lives on the scheduling service; nothing here is
// authoritative.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "clocktick/pkg/logx"
)

// Store is the minimal persistence API used by the daemon.
type Store interface {
	RecordJob(ctx context.Context, r JobRecord) error
	RemoveJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context) ([]JobRecord, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
