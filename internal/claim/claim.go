// Package claim implements mutual exclusion between workers via exclusive
// lock-file creation. The atomic create-if-absent is the only concurrency
// primitive the pipeline relies on; it works unchanged across OS processes
// sharing the lock directory.
package claim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Registry manages the lock directory for one run.
type Registry struct {
	dir string
}

// NewRegistry creates the lock directory if needed.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Registry{dir: dir}, nil
}

func (r *Registry) lockPath(id string) string {
	return filepath.Join(r.dir, id+".lock")
}

// TryClaim attempts to claim id for workerID. Exactly one concurrent caller
// succeeds; the rest see ok=false. The lock file carries the owner and a
// lease timestamp for the sweeper.
func (r *Registry) TryClaim(id string, workerID int) (bool, error) {
	f, err := os.OpenFile(r.lockPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock: %w", err)
	}
	fmt.Fprintf(f, "worker %d\n%d\n", workerID, time.Now().Unix())
	f.Close()
	return true, nil
}

// Touch renews the lease on a held lock.
func (r *Registry) Touch(id string) error {
	now := time.Now()
	return os.Chtimes(r.lockPath(id), now, now)
}

// Release removes the lock. Missing locks are not an error so that release
// after a sweep stays idempotent.
func (r *Registry) Release(id string) error {
	err := os.Remove(r.lockPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// Held returns the ids of all currently held locks.
func (r *Registry) Held() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".lock"))
	}
	return ids, nil
}

// Sweep removes locks whose lease (file mtime) is older than the given
// timeout and returns the reclaimed ids. Intended for locks orphaned by a
// crashed worker; the timeout is operator-chosen, there is no default.
func (r *Registry) Sweep(lease time.Duration) ([]string, error) {
	if lease <= 0 {
		return nil, fmt.Errorf("lease timeout must be positive")
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock directory: %w", err)
	}

	cutoff := time.Now().Add(-lease)
	var reclaimed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return reclaimed, fmt.Errorf("failed to remove stale lock %s: %w", e.Name(), err)
		}
		reclaimed = append(reclaimed, strings.TrimSuffix(e.Name(), ".lock"))
	}
	return reclaimed, nil
}
