// Package merge combines worker shards into the canonical index. Within
// each (source_id, sub_index) group the row with the latest created_at
// wins; the result is sorted for deterministic output.
package merge

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"kiru/internal/models"
	"kiru/internal/shard"
)

// Result is the outcome of one merge pass.
type Result struct {
	Records     []models.Record // deduplicated, sorted by (source_id, sub_index)
	CorruptRows int             // malformed shard rows skipped
	ShardFiles  []string        // shards consumed by this pass
}

// Merge loads all shards under dir and resolves them into the canonical
// record set. It is a pure function of the shard contents: merging the same
// shard set twice produces an identical result. Shard files are not
// modified; deletion is the caller's decision after the index is written.
func Merge(dir string) (*Result, error) {
	paths, err := shard.List(dir)
	if err != nil {
		return nil, err
	}

	records, corrupt, err := shard.ReadAll(dir)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]models.Record, len(records))
	for _, rec := range records {
		key := rec.Key()
		if prev, ok := byKey[key]; ok && prev.CreatedAt >= rec.CreatedAt {
			continue
		}
		byKey[key] = rec
	}

	merged := make([]models.Record, 0, len(byKey))
	for _, rec := range byKey {
		merged = append(merged, rec)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].SourceID != merged[j].SourceID {
			return merged[i].SourceID < merged[j].SourceID
		}
		return merged[i].SubIndex < merged[j].SubIndex
	})

	return &Result{Records: merged, CorruptRows: corrupt, ShardFiles: paths}, nil
}

// WriteCSV writes the merged index as CSV. Output is byte-identical for
// identical record sets.
func WriteCSV(path string, records []models.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"source_id", "sub_index", "start_ms", "end_ms", "label", "confidence", "clip_path", "created_at"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.SourceID,
			strconv.Itoa(rec.SubIndex),
			strconv.FormatInt(rec.StartMS, 10),
			strconv.FormatInt(rec.EndMS, 10),
			rec.Label,
			strconv.FormatFloat(rec.Confidence, 'f', -1, 64),
			rec.ClipPath,
			strconv.FormatInt(rec.CreatedAt, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write index csv: %w", err)
	}
	return nil
}

// DeleteShards removes the consumed shard files.
func DeleteShards(paths []string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete shard %s: %w", p, err)
		}
	}
	return nil
}
