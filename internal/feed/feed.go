// Package feed keeps the staging area populated from the origin without
// exhausting local disk. One controller runs per pipeline; workers only
// ever read from staging, and only the coordinator deletes staged files.
package feed

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"kiru/internal/claim"
	"kiru/internal/ledger"
	"kiru/internal/origin"
)

// Config holds the throttling knobs.
type Config struct {
	// FreeSpaceFloor pauses all copying while free bytes on the staging
	// volume are below it. No partial batches: either the floor holds for
	// the whole pass or nothing is copied.
	FreeSpaceFloor uint64

	// WatermarkLow triggers a top-up when staged-but-unclaimed items drop
	// below it; WatermarkHigh caps the staging depth.
	WatermarkLow  int
	WatermarkHigh int

	// CopyBatchSize limits how many items one pass copies.
	CopyBatchSize int

	// PollInterval is the sleep between passes.
	PollInterval time.Duration
}

// DefaultConfig returns conservative staging limits.
func DefaultConfig() Config {
	return Config{
		FreeSpaceFloor: 10 << 30, // 10 GiB
		WatermarkLow:   4,
		WatermarkHigh:  16,
		CopyBatchSize:  8,
		PollInterval:   5 * time.Second,
	}
}

// Controller copies backlog items into staging.
type Controller struct {
	origin  origin.Origin
	staging string
	backlog []string
	ledger  *ledger.Ledger
	locks   *claim.Registry
	cfg     Config

	// freeSpace is swappable for tests.
	freeSpace func(path string) (uint64, error)

	done atomic.Bool
}

// New returns a controller over the given backlog.
func New(o origin.Origin, staging string, backlog []string, l *ledger.Ledger, locks *claim.Registry, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.CopyBatchSize <= 0 {
		cfg.CopyBatchSize = 1
	}
	return &Controller{
		origin:    o,
		staging:   staging,
		backlog:   backlog,
		ledger:    l,
		locks:     locks,
		cfg:       cfg,
		freeSpace: statFreeSpace,
	}
}

// Done reports whether every backlog id is ledgered or staged/claimed and
// the controller has exited.
func (c *Controller) Done() bool {
	return c.done.Load()
}

// Run loops until the backlog is exhausted or the context is cancelled.
// Copy errors are logged and the id is retried on a later pass; they never
// stop the controller.
//
// The controller exits as soon as every backlog id is ledgered or already
// staged, which can be before staging has fully drained. That is safe: the
// controller never deletes staged files, and Done signals the workers that
// whatever remains in staging is the last of the work.
func (c *Controller) Run(ctx context.Context) error {
	if err := os.MkdirAll(c.staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		free, err := c.freeSpace(c.staging)
		if err != nil {
			log.Printf("feed: free space check failed: %v", err)
			c.sleep(ctx)
			continue
		}
		if c.cfg.FreeSpaceFloor > 0 && free < c.cfg.FreeSpaceFloor {
			// Space exhausted: pause the whole batch, never copy partially.
			log.Printf("feed: free space %d below floor %d, pausing", free, c.cfg.FreeSpaceFloor)
			c.sleep(ctx)
			continue
		}

		staged, err := c.stagedIDs()
		if err != nil {
			log.Printf("feed: failed to list staging: %v", err)
			c.sleep(ctx)
			continue
		}

		pending := c.pendingIDs(staged)
		if len(pending) == 0 {
			// Every backlog id is ledgered or currently staged/claimed.
			c.done.Store(true)
			log.Printf("feed: backlog exhausted, controller exiting")
			return nil
		}

		unclaimed, err := c.unclaimedCount(staged)
		if err != nil {
			log.Printf("feed: failed to count claims: %v", err)
			c.sleep(ctx)
			continue
		}
		if unclaimed >= c.cfg.WatermarkLow {
			c.sleep(ctx)
			continue
		}

		n := c.cfg.CopyBatchSize
		if room := c.cfg.WatermarkHigh - len(staged); room < n {
			n = room
		}
		if n > len(pending) {
			n = len(pending)
		}
		if n <= 0 {
			c.sleep(ctx)
			continue
		}

		for _, id := range pending[:n] {
			if err := c.stage(ctx, id); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Skipped for this pass, retried on the next one.
				log.Printf("feed: failed to stage %s: %v", id, err)
			}
		}
	}
}

// stage copies one item via a temp file so workers never claim a partial
// copy.
func (c *Controller) stage(ctx context.Context, id string) error {
	dest := filepath.Join(c.staging, id)
	tmp := dest + ".part"

	if err := c.origin.Fetch(ctx, id, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish staged file: %w", err)
	}
	return nil
}

// stagedIDs lists complete staged files.
func (c *Controller) stagedIDs() (map[string]bool, error) {
	entries, err := os.ReadDir(c.staging)
	if err != nil {
		return nil, err
	}
	staged := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".part" {
			continue
		}
		staged[e.Name()] = true
	}
	return staged, nil
}

// pendingIDs returns backlog ids that still need staging, in backlog order.
func (c *Controller) pendingIDs(staged map[string]bool) []string {
	var pending []string
	for _, id := range c.backlog {
		if c.ledger.Has(id) || staged[id] {
			continue
		}
		pending = append(pending, id)
	}
	return pending
}

// unclaimedCount counts staged items no worker has claimed yet.
func (c *Controller) unclaimedCount(staged map[string]bool) (int, error) {
	held, err := c.locks.Held()
	if err != nil {
		return 0, err
	}
	claimed := make(map[string]bool, len(held))
	for _, id := range held {
		claimed[id] = true
	}
	n := 0
	for id := range staged {
		if !claimed[id] && !c.ledger.Has(id) {
			n++
		}
	}
	return n, nil
}

func (c *Controller) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.PollInterval):
	}
}

// statFreeSpace returns the free bytes on the volume holding path.
func statFreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
