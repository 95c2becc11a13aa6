// Package shard persists per-worker record shards. A shard is append-only
// JSONL written by exactly one worker; conflicting rows across shards are
// resolved at merge time, never here.
package shard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"kiru/internal/models"
)

// Writer appends records to one worker-local shard file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	next map[string]int // next sub_index per source id
	path string
}

// NewWriter opens (or creates) the shard file for workerID under dir.
// Re-opening an existing shard keeps appending; sub_index continues from
// the rows already present.
func NewWriter(dir string, workerID int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("shard_%03d.jsonl", workerID))

	next := make(map[string]int)
	if existing, _, err := readFile(path); err == nil {
		for _, rec := range existing {
			if rec.SubIndex >= next[rec.SourceID] {
				next[rec.SourceID] = rec.SubIndex + 1
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard: %w", err)
	}

	return &Writer{f: f, next: next, path: path}, nil
}

// Path returns the shard file location.
func (w *Writer) Path() string { return w.path }

// Append assigns the next sub_index for the record's source, stamps the
// wall-clock created_at, and writes the row. Rows are never rewritten.
func (w *Writer) Append(rec models.Record) (models.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec.SubIndex = w.next[rec.SourceID]
	rec.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return rec, fmt.Errorf("failed to append record: %w", err)
	}

	w.next[rec.SourceID]++
	return rec, nil
}

// Close flushes and closes the shard file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

// List returns the shard files under dir in name order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read shard directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "shard_") || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadAll loads every record from the shard files under dir. Malformed rows
// are skipped and counted, never fatal.
func ReadAll(dir string) (records []models.Record, corrupt int, err error) {
	paths, err := List(dir)
	if err != nil {
		return nil, 0, err
	}
	for _, path := range paths {
		recs, bad, err := readFile(path)
		if err != nil {
			return nil, corrupt, err
		}
		records = append(records, recs...)
		corrupt += bad
	}
	return records, corrupt, nil
}

func readFile(path string) (records []models.Record, corrupt int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.SourceID == "" {
			corrupt++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, corrupt, fmt.Errorf("failed to read shard %s: %w", path, err)
	}
	return records, corrupt, nil
}
