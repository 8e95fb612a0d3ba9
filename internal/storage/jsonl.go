package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"shardcurve/internal/model"
)

// JsonlStorage writes log records to a JSONL file. Records whose key (tx hash and log
// index) was already written by this instance are skipped.
type JsonlStorage struct {
	path     string
	truncate bool

	mu      sync.Mutex
	opened  bool
	written map[string]struct{}
}

// NewJsonlStorage appends to path, keeping what earlier runs wrote.
func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path, written: make(map[string]struct{})}
}

// NewJsonlStorageFresh truncates path on the first batch, for outputs that are regenerated
// on every run.
func NewJsonlStorageFresh(path string) *JsonlStorage {
	s := NewJsonlStorage(path)
	s.truncate = true
	return s
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if s.truncate && !s.opened {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()
	s.opened = true

	writer := bufio.NewWriter(file)
	keys := make([]string, 0, len(logs))
	for _, record := range logs {
		key := record.Key()
		if _, dup := s.written[key]; dup {
			continue
		}
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal log record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write log record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
		keys = append(keys, key)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	for _, key := range keys {
		s.written[key] = struct{}{}
	}

	return nil
}
