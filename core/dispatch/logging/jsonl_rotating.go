package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingJSONLStore stores task records in a JSONL file with automatic rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingJSONLStore) Append(_ context.Context, rec TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.NewEncoder(s.logger).Encode(rec)
}

// backups lists the rotated files, oldest first. lumberjack names them
// <name>-<timestamp><ext> next to the active file.
func (s *RotatingJSONLStore) backups() ([]string, error) {
	ext := filepath.Ext(s.path)
	prefix := s.path[:len(s.path)-len(ext)] + "-"
	files, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Query reads the rotated files and the active one.
func (s *RotatingJSONLStore) Query(_ context.Context, q TaskQuery) ([]TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, err := s.backups()
	if err != nil {
		return nil, err
	}
	files = append(files, s.path)
	var res []TaskRecord
	for _, f := range files {
		recs, err := readRecords(f)
		if err != nil {
			continue
		}
		for _, r := range recs {
			if q.Match(r) {
				res = append(res, r)
			}
		}
	}
	return res, nil
}

// Prune deletes rotated files whose every record ended before the cutoff.
// The active file is left to lumberjack.
func (s *RotatingJSONLStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, err := s.backups()
	if err != nil {
		return 0, err
	}
	var dropped int64
	for _, f := range files {
		recs, err := readRecords(f)
		if err != nil {
			continue
		}
		expired := true
		for _, r := range recs {
			if !r.EndTime.Before(before) {
				expired = false
				break
			}
		}
		if !expired {
			continue
		}
		if err := os.Remove(f); err != nil {
			return dropped, err
		}
		dropped += int64(len(recs))
	}
	return dropped, nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error {
	return s.logger.Close()
}
