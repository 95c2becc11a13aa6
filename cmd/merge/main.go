// Merges worker shards into the canonical index (CSV and SQLite) and
// deletes the consumed shards. Refuses to run while any lock is held so a
// live run is never merged mid-flight.
//
// Usage:
//   go run ./cmd/merge -out ./out
//   go run ./cmd/merge -out ./out -keep-shards
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"kiru/internal/claim"
	"kiru/internal/merge"
	"kiru/internal/storage"
)

func main() {
	outDir := flag.String("out", "out", "Output directory holding the shards")
	csvPath := flag.String("csv", "", "Index CSV path (default <out>/INDEX.csv)")
	dbPath := flag.String("db", "", "Index database path (default <out>/index.db)")
	keepShards := flag.Bool("keep-shards", false, "Keep shard files after a successful merge")
	force := flag.Bool("force", false, "Merge even while locks are held")
	flag.Parse()

	if *csvPath == "" {
		*csvPath = filepath.Join(*outDir, "INDEX.csv")
	}
	if *dbPath == "" {
		*dbPath = filepath.Join(*outDir, "index.db")
	}

	locks, err := claim.NewRegistry(filepath.Join(*outDir, "locks"))
	if err != nil {
		log.Fatalf("Failed to open lock registry: %v", err)
	}
	held, err := locks.Held()
	if err != nil {
		log.Fatalf("Failed to list locks: %v", err)
	}
	if len(held) > 0 && !*force {
		log.Fatalf("Refusing to merge: %d locks held (%v). Wait for the run to finish or pass -force.", len(held), held)
	}

	result, err := merge.Merge(*outDir)
	if err != nil {
		log.Fatalf("Merge failed: %v", err)
	}
	if err := merge.WriteCSV(*csvPath, result.Records); err != nil {
		log.Fatalf("Failed to write index: %v", err)
	}

	ctx := context.Background()
	db, err := storage.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open index database: %v", err)
	}
	defer db.Close()

	repo := storage.NewRecordRepository(db)
	if err := repo.ReplaceAll(ctx, result.Records); err != nil {
		log.Fatalf("Failed to write index database: %v", err)
	}
	runID, err := repo.RecordMergeRun(ctx, len(result.Records), result.CorruptRows)
	if err != nil {
		log.Fatalf("Failed to record merge run: %v", err)
	}

	if !*keepShards {
		if err := merge.DeleteShards(result.ShardFiles); err != nil {
			log.Fatalf("Failed to delete shards: %v", err)
		}
	}

	fmt.Printf("Merged %d records from %d shards (%d corrupt rows skipped), run %s\n",
		len(result.Records), len(result.ShardFiles), result.CorruptRows, runID)
}
