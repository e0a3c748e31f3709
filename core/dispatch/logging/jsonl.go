package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// JSONLStore stores task records in a JSONL file.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLStore{path: path}, nil
}

func (s *JSONLStore) Append(ctx context.Context, rec TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(rec)
}

func (s *JSONLStore) Query(ctx context.Context, q TaskQuery) ([]TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	var res []TaskRecord
	for _, r := range all {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

// Prune rewrites the file without the records that ended before the cutoff.
func (s *JSONLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := readRecords(s.path)
	if err != nil {
		return 0, err
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	var dropped int64
	for _, r := range all {
		if r.EndTime.Before(before) {
			dropped++
			continue
		}
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if dropped == 0 {
		return 0, os.Remove(tmp)
	}
	return dropped, os.Rename(tmp, s.path)
}

func (s *JSONLStore) Close() error { return nil }

// readRecords decodes every well-formed line of path. Corrupt lines are
// skipped.
func readRecords(path string) ([]TaskRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var res []TaskRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r TaskRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		res = append(res, r)
	}
	return res, scanner.Err()
}
