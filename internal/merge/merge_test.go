package merge

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeShard(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestMergeLatestWriteWins(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "shard_001.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":1000,"created_at":100}`+"\n")
	writeShard(t, dir, "shard_002.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":2000,"created_at":200}`+"\n")

	result, err := Merge(dir)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	rec := result.Records[0]
	if rec.CreatedAt != 200 || rec.EndMS != 2000 {
		t.Errorf("got created_at=%d end_ms=%d, want the created_at=200 row", rec.CreatedAt, rec.EndMS)
	}
}

func TestMergeSortsByCompositeKey(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "shard_001.jsonl",
		`{"source_id":"b","sub_index":1,"start_ms":0,"end_ms":1,"created_at":1}
{"source_id":"a","sub_index":0,"start_ms":0,"end_ms":1,"created_at":1}
{"source_id":"b","sub_index":0,"start_ms":0,"end_ms":1,"created_at":1}
{"source_id":"a","sub_index":2,"start_ms":0,"end_ms":1,"created_at":1}
`)

	result, err := Merge(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		source string
		sub    int
	}{
		{"a", 0}, {"a", 2}, {"b", 0}, {"b", 1},
	}
	if len(result.Records) != len(want) {
		t.Fatalf("got %d records, want %d", len(result.Records), len(want))
	}
	for i, w := range want {
		got := result.Records[i]
		if got.SourceID != w.source || got.SubIndex != w.sub {
			t.Errorf("position %d: got (%s,%d), want (%s,%d)",
				i, got.SourceID, got.SubIndex, w.source, w.sub)
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "shard_001.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":1000,"confidence":0.9,"created_at":100}
{"source_id":"y","sub_index":0,"start_ms":500,"end_ms":900,"confidence":0.7,"created_at":150}
`)
	writeShard(t, dir, "shard_002.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":1200,"confidence":0.95,"created_at":120}`+"\n")

	csv1 := filepath.Join(t.TempDir(), "INDEX.csv")
	csv2 := filepath.Join(t.TempDir(), "INDEX.csv")

	for i, out := range []string{csv1, csv2} {
		result, err := Merge(dir)
		if err != nil {
			t.Fatalf("merge pass %d failed: %v", i+1, err)
		}
		if err := WriteCSV(out, result.Records); err != nil {
			t.Fatalf("WriteCSV pass %d failed: %v", i+1, err)
		}
	}

	b1, _ := os.ReadFile(csv1)
	b2, _ := os.ReadFile(csv2)
	if !bytes.Equal(b1, b2) {
		t.Error("merging the same shard set twice produced different output")
	}
}

func TestMergeCountsCorruptRows(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "shard_001.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":1000,"created_at":100}
{{{broken
`)

	result, err := Merge(dir)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if result.CorruptRows != 1 {
		t.Errorf("got %d corrupt rows, want 1", result.CorruptRows)
	}
	if len(result.Records) != 1 {
		t.Errorf("got %d records, want 1", len(result.Records))
	}
}

func TestMergeEmptyDir(t *testing.T) {
	result, err := Merge(t.TempDir())
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(result.Records) != 0 || result.CorruptRows != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestDeleteShards(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "shard_001.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":1000,"created_at":100}`+"\n")

	result, err := Merge(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := DeleteShards(result.ShardFiles); err != nil {
		t.Fatalf("DeleteShards failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "shard_001.jsonl")); !os.IsNotExist(err) {
		t.Error("shard file still present after delete")
	}
}

func TestMergeThenDeleteConsumesShards(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "shard_000.jsonl",
		`{"source_id":"x","sub_index":0,"start_ms":0,"end_ms":1000,"created_at":100}`+"\n")
	writeShard(t, dir, "shard_001.jsonl",
		`{"source_id":"y","sub_index":0,"start_ms":0,"end_ms":500,"created_at":110}`+"\n")
	csvPath := filepath.Join(dir, "INDEX.csv")

	result, err := Merge(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteCSV(csvPath, result.Records); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if err := DeleteShards(result.ShardFiles); err != nil {
		t.Fatalf("DeleteShards failed: %v", err)
	}

	// The index survives; the shard set is fully consumed.
	if _, err := os.Stat(csvPath); err != nil {
		t.Fatalf("index missing after shard deletion: %v", err)
	}
	again, err := Merge(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Records) != 0 || len(again.ShardFiles) != 0 {
		t.Errorf("shards remain consumable after deletion: %+v", again)
	}
}
