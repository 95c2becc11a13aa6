// Package ledger implements the append-only progress ledger. An id present
// in the ledger has reached a terminal state and is never reprocessed by a
// later run.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kiru/internal/models"
)

// Ledger is the durable record of finished work items. Appends go straight
// to disk before the in-memory set is updated; the file is the source of
// truth for resume.
type Ledger struct {
	path string

	mu   sync.Mutex
	f    *os.File
	done map[string]models.Outcome
}

// Open reads an existing ledger (if any) and opens it for appending.
// Rows are "id<TAB>outcome<TAB>timestamp"; plain id-per-line rows from
// older runs are accepted and treated as processed.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	done := make(map[string]models.Outcome)
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			fields := strings.Split(line, "\t")
			outcome := models.OutcomeProcessed
			if len(fields) > 1 && fields[1] == string(models.OutcomeFailed) {
				outcome = models.OutcomeFailed
			}
			done[fields[0]] = outcome
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger for append: %w", err)
	}

	return &Ledger{path: path, f: f, done: done}, nil
}

// Has reports whether id already reached a terminal state.
func (l *Ledger) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[id]
	return ok
}

// Append records a terminal state for id. The row is synced to disk before
// the in-memory set is updated.
func (l *Ledger) Append(id string, outcome models.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := fmt.Sprintf("%s\t%s\t%s\n", id, outcome, time.Now().Format(time.RFC3339))
	if _, err := l.f.WriteString(row); err != nil {
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}

	l.done[id] = outcome
	return nil
}

// Counts returns the number of processed and failed ids.
func (l *Ledger) Counts() (processed, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, outcome := range l.done {
		if outcome == models.OutcomeFailed {
			failed++
		} else {
			processed++
		}
	}
	return processed, failed
}

// Len returns the total number of ledgered ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
