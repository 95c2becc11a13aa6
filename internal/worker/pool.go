package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"kiru/internal/clip"
	"kiru/internal/media"
	"kiru/internal/models"
	"kiru/internal/scorer"
	"kiru/internal/segment"
	"kiru/internal/shard"
)

// Config holds pool tuning.
type Config struct {
	Workers int

	Mode     segment.Mode
	ChunkLen float64 // fixed mode window length in seconds
	Adaptive segment.AdaptiveConfig

	// OutDir receives shard files and per-worker logs.
	OutDir string

	// ClipDir enables clip extraction when non-empty.
	ClipDir string

	// PollInterval is the idle sleep when nothing is claimable.
	PollInterval time.Duration

	// IdleExit makes a worker give up after this long with nothing to
	// claim, even if the feed has not reported done. Zero disables it.
	IdleExit time.Duration

	// Heartbeat is the lease renewal interval while processing.
	Heartbeat time.Duration
}

// DefaultConfig returns pool defaults for adaptive extraction.
func DefaultConfig(outDir string) Config {
	return Config{
		Workers:      2,
		Mode:         segment.ModeAdaptive,
		ChunkLen:     30,
		Adaptive:     segment.DefaultAdaptiveConfig(),
		OutDir:       outDir,
		PollInterval: 2 * time.Second,
		Heartbeat:    30 * time.Second,
	}
}

// Pool runs N workers against the coordinator until the backlog drains.
type Pool struct {
	coord  *Coordinator
	scorer scorer.Scorer
	cfg    Config

	// feedDone reports that no further items will appear in staging.
	feedDone func() bool

	// probe returns media duration; swappable for tests.
	probe func(path string) (float64, error)

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool wires a pool. feedDone tells the workers when an empty staging
// scan means finished rather than starved.
func NewPool(coord *Coordinator, sc scorer.Scorer, feedDone func() bool, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Pool{
		coord:    coord,
		scorer:   sc,
		cfg:      cfg,
		feedDone: feedDone,
		probe:    media.Duration,
	}
}

// Processed returns the number of items finished successfully.
func (p *Pool) Processed() int { return int(p.processed.Load()) }

// Failed returns the number of items that reached a failed terminal state.
func (p *Pool) Failed() int { return int(p.failed.Load()) }

// Run blocks until all workers exit. Workers exit when the feed is done and
// staging has nothing claimable left, or when the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	if err := os.MkdirAll(p.cfg.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs[id] = p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context, id int) error {
	logger, closeLog, err := p.openWorkerLog(id)
	if err != nil {
		return err
	}
	defer closeLog()

	writer, err := shard.NewWriter(p.cfg.OutDir, id)
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	defer writer.Close()

	logger.Printf("worker %d started", id)
	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, ok, err := p.coord.NextItem(id)
		if err != nil {
			logger.Printf("claim scan failed: %v", err)
			p.sleep(ctx)
			continue
		}
		if !ok {
			if p.feedDone != nil && p.feedDone() {
				logger.Printf("worker %d finished, nothing left to claim", id)
				return nil
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			if p.cfg.IdleExit > 0 && time.Since(idleSince) >= p.cfg.IdleExit {
				logger.Printf("worker %d idle for %v, exiting", id, p.cfg.IdleExit)
				return nil
			}
			p.sleep(ctx)
			continue
		}
		idleSince = time.Time{}

		outcome := p.processItem(ctx, logger, writer, item)
		if err := p.coord.Release(item, outcome); err != nil {
			logger.Printf("failed to release %s: %v", item.ID, err)
			return err
		}
		if outcome == models.OutcomeProcessed {
			p.processed.Add(1)
		} else {
			p.failed.Add(1)
		}
	}
}

// processItem runs one item through probe, score, extract, and record. Any
// error makes the item a failure; the pipeline moves on.
func (p *Pool) processItem(ctx context.Context, logger *log.Logger, writer *shard.Writer, item models.WorkItem) models.Outcome {
	logger.Printf("processing %s", item.ID)
	start := time.Now()

	stopHeartbeat := p.startHeartbeat(ctx, item, logger)
	defer stopHeartbeat()

	duration, err := p.probe(item.StagedPath)
	if err != nil {
		logger.Printf("failed to probe %s: %v", item.ID, err)
		return models.OutcomeFailed
	}
	if duration <= 0 {
		// Zero-length or empty container: unreadable as a source.
		logger.Printf("source %s has no duration", item.ID)
		return models.OutcomeFailed
	}

	intervals, err := p.extract(ctx, item, duration)
	if err != nil {
		logger.Printf("failed to score %s: %v", item.ID, err)
		return models.OutcomeFailed
	}

	for _, iv := range intervals {
		rec := models.Record{
			SourceID:   item.ID,
			StartMS:    int64(math.Round(iv.Start * 1000)),
			EndMS:      int64(math.Round(iv.End * 1000)),
			Label:      p.scorer.Name(),
			Confidence: iv.Score,
		}
		if p.cfg.ClipDir != "" {
			out, err := clip.Extract(ctx, item.StagedPath, p.cfg.ClipDir, p.scorer.Name(), iv)
			if err != nil {
				logger.Printf("failed to extract clip from %s: %v", item.ID, err)
				return models.OutcomeFailed
			}
			rec.ClipPath = out
		}
		if _, err := writer.Append(rec); err != nil {
			logger.Printf("failed to record %s: %v", item.ID, err)
			return models.OutcomeFailed
		}
	}

	logger.Printf("processed %s: %d intervals in %v", item.ID, len(intervals), time.Since(start).Round(time.Millisecond))
	return models.OutcomeProcessed
}

// extract produces the item's intervals for the configured mode.
func (p *Pool) extract(ctx context.Context, item models.WorkItem, duration float64) ([]models.Interval, error) {
	switch p.cfg.Mode {
	case segment.ModeFixed:
		windows := segment.FixedWindows(duration, p.cfg.ChunkLen)
		for i := range windows {
			score, err := p.scorer.WindowScore(ctx, item.StagedPath, windows[i].Start, windows[i].End)
			if err != nil {
				return nil, err
			}
			windows[i].Score = score
		}
		return windows, nil
	case segment.ModeAdaptive:
		detections, err := p.scorer.Detections(ctx, item.StagedPath, duration)
		if err != nil {
			return nil, err
		}
		return segment.MergeDetections(detections, duration, p.cfg.Adaptive), nil
	default:
		return nil, fmt.Errorf("unknown extraction mode %q", p.cfg.Mode)
	}
}

// startHeartbeat renews the item's lease until the returned stop func runs.
func (p *Pool) startHeartbeat(ctx context.Context, item models.WorkItem, logger *log.Logger) func() {
	if p.cfg.Heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.coord.Touch(item); err != nil {
					logger.Printf("failed to renew lease on %s: %v", item.ID, err)
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (p *Pool) openWorkerLog(id int) (*log.Logger, func(), error) {
	path := filepath.Join(p.cfg.OutDir, fmt.Sprintf("worker_%d_log.txt", id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open worker log: %w", err)
	}
	logger := log.New(io.MultiWriter(os.Stderr, f), fmt.Sprintf("W%d: ", id), log.LstdFlags)
	return logger, func() { f.Close() }, nil
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.PollInterval):
	}
}
