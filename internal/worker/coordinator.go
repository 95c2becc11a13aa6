// Package worker runs the extraction workers over the staging directory.
// The coordinator hands out claims; the pool drives N workers through the
// claim, score, extract, record, release cycle.
package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kiru/internal/claim"
	"kiru/internal/ledger"
	"kiru/internal/models"
)

// Coordinator assigns staged items to workers and finalizes them. It holds
// no queue of its own: the staging directory is the queue, scanned fresh on
// every request so concurrent workers and external processes stay
// consistent.
type Coordinator struct {
	staging string
	ledger  *ledger.Ledger
	locks   *claim.Registry
}

// NewCoordinator wires the coordinator over shared state.
func NewCoordinator(staging string, l *ledger.Ledger, locks *claim.Registry) *Coordinator {
	return &Coordinator{staging: staging, ledger: l, locks: locks}
}

// NextItem scans staging in sorted order and claims the first item that is
// neither ledgered nor locked. ok=false means nothing was claimable on this
// pass, which is not an error.
func (c *Coordinator) NextItem(workerID int) (item models.WorkItem, ok bool, err error) {
	entries, err := os.ReadDir(c.staging)
	if err != nil {
		if os.IsNotExist(err) {
			return models.WorkItem{}, false, nil
		}
		return models.WorkItem{}, false, fmt.Errorf("failed to scan staging: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if c.ledger.Has(name) {
			continue
		}
		claimed, err := c.locks.TryClaim(name, workerID)
		if err != nil {
			return models.WorkItem{}, false, err
		}
		if !claimed {
			continue
		}
		return models.WorkItem{
			ID:         name,
			StagedPath: filepath.Join(c.staging, name),
		}, true, nil
	}
	return models.WorkItem{}, false, nil
}

// Release finalizes a claimed item: ledger append first, then lock removal,
// then staged-file deletion. The ordering makes a crash mid-release safe; a
// ledgered id is never handed out again even if its lock or file lingers.
func (c *Coordinator) Release(item models.WorkItem, outcome models.Outcome) error {
	if err := c.ledger.Append(item.ID, outcome); err != nil {
		return err
	}
	if err := c.locks.Release(item.ID); err != nil {
		return err
	}
	if err := os.Remove(item.StagedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}

// Touch renews the lease on an item's claim.
func (c *Coordinator) Touch(item models.WorkItem) error {
	return c.locks.Touch(item.ID)
}
