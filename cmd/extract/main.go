// Runs the full extraction pipeline: feed the staging directory from the
// origin, process items with a worker pool, then merge the shards into the
// index.
//
// Usage:
//   go run ./cmd/extract -backlog backlog.txt -origin /mnt/cam -out ./out
//   go run ./cmd/extract -backlog ids.txt -origin-youtube -scorer speech -vad-model models/silero_vad.onnx
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"kiru/internal/backlog"
	"kiru/internal/claim"
	"kiru/internal/config"
	"kiru/internal/feed"
	"kiru/internal/ledger"
	"kiru/internal/merge"
	"kiru/internal/models"
	"kiru/internal/origin"
	"kiru/internal/scorer"
	"kiru/internal/segment"
	"kiru/internal/storage"
	"kiru/internal/worker"
)

func main() {
	config.Load()

	backlogPath := flag.String("backlog", "", "Backlog file, one item id per line")
	originDir := flag.String("origin", "", "Origin directory holding the source files")
	originYouTube := flag.Bool("origin-youtube", false, "Treat backlog ids as YouTube video ids")
	outDir := flag.String("out", "out", "Output directory for shards, logs, and the index")
	stagingDir := flag.String("staging", "", "Staging directory (default <out>/staging)")
	clipDir := flag.String("clips", "", "Emit clips into this directory (empty disables)")

	workers := flag.Int("workers", config.GetEnvInt("KIRU_WORKERS", 2), "Number of workers")
	mode := flag.String("mode", "adaptive", "Extraction mode: fixed or adaptive")
	chunkLen := flag.Float64("chunk-len", 30, "Fixed mode window length (seconds)")
	buffer := flag.Float64("buffer", 1.0, "Adaptive mode expansion around detections (seconds)")
	minLen := flag.Float64("min-len", 0, "Drop intervals shorter than this (seconds)")
	maxLen := flag.Float64("max-len", 0, "Drop intervals longer than this (seconds, 0 = unbounded)")

	scorerName := flag.String("scorer", "energy", "Scorer: energy or speech")
	vadModel := flag.String("vad-model", config.GetEnv("KIRU_VAD_MODEL", "models/silero_vad.onnx"), "Silero VAD model path (speech scorer)")

	spaceFloorGB := flag.Uint64("space-floor-gb", config.GetEnvUint64("KIRU_SPACE_FLOOR_GB", 10), "Pause staging while free space is below this (GiB)")
	lowWater := flag.Int("low-watermark", 4, "Top up staging when unclaimed items drop below this")
	highWater := flag.Int("high-watermark", 16, "Maximum staging depth")
	copyBatch := flag.Int("copy-batch", 8, "Items copied per feed pass")
	poll := flag.Duration("poll", 2*time.Second, "Idle poll interval for feed and workers")
	idleExit := flag.Duration("idle-exit", 0, "Workers give up after this long with nothing to claim (0 = wait for the feed)")
	flag.Parse()

	if *backlogPath == "" {
		log.Fatal("Usage: go run ./cmd/extract -backlog <file> -origin <dir> [flags]")
	}
	if *stagingDir == "" {
		*stagingDir = filepath.Join(*outDir, "staging")
	}

	var org origin.Origin
	switch {
	case *originYouTube:
		org = origin.NewYouTube()
	case *originDir != "":
		org = origin.NewDir(*originDir)
	default:
		log.Fatal("either -origin or -origin-youtube is required")
	}

	var sc scorer.Scorer
	switch *scorerName {
	case "energy":
		sc = scorer.NewEnergy(scorer.DefaultEnergyConfig())
	case "speech":
		var err error
		sc, err = scorer.NewVAD(scorer.DefaultVADConfig(*vadModel))
		if err != nil {
			log.Fatalf("Failed to create VAD scorer: %v", err)
		}
	default:
		log.Fatalf("unknown scorer %q", *scorerName)
	}

	ids, err := backlog.Load(*backlogPath)
	if err != nil {
		log.Fatalf("Failed to load backlog: %v", err)
	}
	fmt.Printf("Backlog: %d items\n", len(ids))

	led, err := ledger.Open(filepath.Join(*outDir, "processed.txt"))
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer led.Close()

	locks, err := claim.NewRegistry(filepath.Join(*outDir, "locks"))
	if err != nil {
		log.Fatalf("Failed to create lock registry: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feedCfg := feed.Config{
		FreeSpaceFloor: *spaceFloorGB << 30,
		WatermarkLow:   *lowWater,
		WatermarkHigh:  *highWater,
		CopyBatchSize:  *copyBatch,
		PollInterval:   *poll,
	}
	controller := feed.New(org, *stagingDir, ids, led, locks, feedCfg)

	feedErr := make(chan error, 1)
	go func() { feedErr <- controller.Run(ctx) }()

	poolCfg := worker.Config{
		Workers:  *workers,
		Mode:     segment.Mode(*mode),
		ChunkLen: *chunkLen,
		Adaptive: segment.AdaptiveConfig{
			Buffer: *buffer,
			MinLen: *minLen,
			MaxLen: *maxLen,
		},
		OutDir:       *outDir,
		ClipDir:      *clipDir,
		PollInterval: *poll,
		IdleExit:     *idleExit,
		Heartbeat:    30 * time.Second,
	}
	pool := worker.NewPool(worker.NewCoordinator(*stagingDir, led, locks), sc, controller.Done, poolCfg)

	startedAt := time.Now()
	if err := pool.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Worker pool failed: %v", err)
	}
	if err := <-feedErr; err != nil && err != context.Canceled {
		log.Fatalf("Feed controller failed: %v", err)
	}

	// The merge runs even after an interrupt, so whatever the workers
	// finished is indexed; use a fresh context since the signal one is
	// already cancelled.
	mergeCtx := context.Background()

	result, err := merge.Merge(*outDir)
	if err != nil {
		log.Fatalf("Merge failed: %v", err)
	}
	if err := merge.WriteCSV(filepath.Join(*outDir, "INDEX.csv"), result.Records); err != nil {
		log.Fatalf("Failed to write index: %v", err)
	}

	db, err := storage.Open(filepath.Join(*outDir, "index.db"))
	if err != nil {
		log.Fatalf("Failed to open index database: %v", err)
	}
	defer db.Close()

	repo := storage.NewRecordRepository(db)
	if err := repo.ReplaceAll(mergeCtx, result.Records); err != nil {
		log.Fatalf("Failed to write index database: %v", err)
	}
	if _, err := repo.RecordMergeRun(mergeCtx, len(result.Records), result.CorruptRows); err != nil {
		log.Fatalf("Failed to record merge run: %v", err)
	}
	if err := merge.DeleteShards(result.ShardFiles); err != nil {
		log.Fatalf("Failed to delete shards: %v", err)
	}

	report := models.RunReport{
		RunID:       uuid.New().String(),
		Mode:        *mode,
		Scorer:      sc.Name(),
		Processed:   pool.Processed(),
		Failed:      pool.Failed(),
		CorruptRows: result.CorruptRows,
		Merged:      len(result.Records),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(filepath.Join(*outDir, "run_report.json"), append(data, '\n'), 0644); err != nil {
		log.Fatalf("Failed to write run report: %v", err)
	}

	fmt.Printf("Done: %d processed, %d failed, %d records merged (%d corrupt rows skipped)\n",
		report.Processed, report.Failed, report.Merged, report.CorruptRows)
}
