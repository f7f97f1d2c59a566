package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "clocktick/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.jobs.jsonl  (append-only journal of put/del operations)
//   - <prefix>.dedup.jsonl (append-only journal of dedup keys)
//
// Journals are replayed on open and compacted when they grow.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	jobsPath   string
	jobsFile   *os.File
	jobs       map[string]JobRecord
	jobsWrites int

	dedupPath   string
	dedupFile   *os.File
	dedup       map[string]int64 // unix milli
	dedupWrites int
}

type jobOp struct {
	Op  string    `json:"op"` // "put" or "del"
	Job JobRecord `json:"job"`
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	jobsPath := prefix + ".jobs.jsonl"
	dedupPath := prefix + ".dedup.jsonl"

	jobs := map[string]JobRecord{}
	if err := replayJobsJournal(jobsPath, jobs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	dedup := map[string]int64{}
	if err := replayDedupJournal(dedupPath, dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	pruneExpiredDedup(dedup)

	jf, err := os.OpenFile(jobsPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	df, err := os.OpenFile(dedupPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	return &fileStore{
		log:       log,
		jobsPath:  jobsPath,
		jobsFile:  jf,
		jobs:      jobs,
		dedupPath: dedupPath,
		dedupFile: df,
		dedup:     dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.jobsFile != nil {
		err1 = s.jobsFile.Close()
		s.jobsFile = nil
	}
	if s.dedupFile != nil {
		err2 = s.dedupFile.Close()
		s.dedupFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) RecordJob(ctx context.Context, r JobRecord) error {
	_ = ctx
	if r.JobID == "" {
		return errors.New("job id is empty")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobsFile == nil {
		return errors.New("jobs journal closed")
	}
	s.jobs[r.JobID] = r
	return s.appendJobLocked(jobOp{Op: "put", Job: r})
}

func (s *fileStore) RemoveJob(ctx context.Context, jobID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobsFile == nil {
		return errors.New("jobs journal closed")
	}
	if _, ok := s.jobs[jobID]; !ok {
		return nil
	}
	delete(s.jobs, jobID)
	return s.appendJobLocked(jobOp{Op: "del", Job: JobRecord{JobID: jobID}})
}

func (s *fileStore) ListJobs(ctx context.Context) ([]JobRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobRecord, 0, len(s.jobs))
	for _, r := range s.jobs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fileStore) appendJobLocked(op jobOp) error {
	if err := json.NewEncoder(s.jobsFile).Encode(op); err != nil {
		return err
	}
	s.jobsWrites++
	if s.jobsWrites%1000 == 0 {
		if err := s.compactJobsLocked(); err != nil {
			s.log.Debug("jobs compact failed", logx.Err(err))
		}
	}
	return nil
}

// compactJobsLocked rewrites the journal from the in-memory state so deleted
// jobs stop occupying disk.
func (s *fileStore) compactJobsLocked() error {
	tmp := s.jobsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range s.jobs {
		if err := enc.Encode(jobOp{Op: "put", Job: r}); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.jobsPath); err != nil {
		return err
	}
	old := s.jobsFile
	nf, err := os.OpenFile(s.jobsPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	s.jobsFile = nf
	return old.Close()
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupFile == nil {
		return errors.New("dedup journal closed")
	}
	s.dedup[key] = ms

	if err := json.NewEncoder(s.dedupFile).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%1000 == 0 {
		if err := s.compactDedupLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactDedupLocked() error {
	pruneExpiredDedup(s.dedup)

	tmp := s.dedupPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for k, ms := range s.dedup {
		if err := enc.Encode(dedupRecord{Key: k, Until: ms}); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.dedupPath); err != nil {
		return err
	}
	old := s.dedupFile
	nf, err := os.OpenFile(s.dedupPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	s.dedupFile = nf
	return old.Close()
}

func replayJobsJournal(path string, out map[string]JobRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var op jobOp
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			// Skip torn trailing writes.
			continue
		}
		switch op.Op {
		case "put":
			out[op.Job.JobID] = op.Job
		case "del":
			delete(out, op.Job.JobID)
		}
	}
	return sc.Err()
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec dedupRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Key != "" {
			out[rec.Key] = rec.Until
		}
	}
	return sc.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, ms := range m {
		if ms <= now {
			delete(m, k)
		}
	}
}
