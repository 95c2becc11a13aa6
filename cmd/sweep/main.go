// Reclaims locks orphaned by crashed workers. The lease timeout is a
// required, operator-chosen value: it must exceed the longest plausible
// item processing time or a live worker's claim gets stolen.
//
// Usage:
//   go run ./cmd/sweep -out ./out -lease 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"kiru/internal/claim"
)

func main() {
	outDir := flag.String("out", "out", "Output directory holding the lock registry")
	lease := flag.Duration("lease", 0, "Reclaim locks idle longer than this (required)")
	flag.Parse()

	if *lease <= 0 {
		log.Fatal("Usage: go run ./cmd/sweep -out <dir> -lease <duration>, e.g. -lease 2h")
	}

	locks, err := claim.NewRegistry(filepath.Join(*outDir, "locks"))
	if err != nil {
		log.Fatalf("Failed to open lock registry: %v", err)
	}

	reclaimed, err := locks.Sweep(*lease)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	if len(reclaimed) == 0 {
		fmt.Println("No stale locks")
		return
	}
	fmt.Printf("Reclaimed %d stale locks (older than %v):\n", len(reclaimed), *lease)
	for _, id := range reclaimed {
		fmt.Printf("  %s\n", id)
	}
}
