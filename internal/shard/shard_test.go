package shard

import (
	"os"
	"path/filepath"
	"testing"

	"kiru/internal/models"
)

func TestAppendAssignsSubIndex(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1)
	if err != nil {
		t.Fatal(err)
	}

	recs := []models.Record{
		{SourceID: "a.mp4", StartMS: 0, EndMS: 1000},
		{SourceID: "a.mp4", StartMS: 2000, EndMS: 3000},
		{SourceID: "b.mp4", StartMS: 500, EndMS: 1500},
		{SourceID: "a.mp4", StartMS: 4000, EndMS: 5000},
	}

	wantSub := []int{0, 1, 0, 2}
	for i, rec := range recs {
		got, err := w.Append(rec)
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if got.SubIndex != wantSub[i] {
			t.Errorf("record %d: got sub_index %d, want %d", i, got.SubIndex, wantSub[i])
		}
		if got.CreatedAt == 0 {
			t.Errorf("record %d: created_at not stamped", i)
		}
	}
	w.Close()

	// Re-opening the shard continues sub_index sequences.
	w, err = NewWriter(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	got, err := w.Append(models.Record{SourceID: "a.mp4", StartMS: 6000, EndMS: 7000})
	if err != nil {
		t.Fatal(err)
	}
	if got.SubIndex != 3 {
		t.Errorf("got sub_index %d after reopen, want 3", got.SubIndex)
	}
}

func TestReadAllSkipsCorruptRows(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(models.Record{SourceID: "a.mp4", StartMS: 0, EndMS: 1000})
	w.Close()

	// A second shard with garbage mixed in.
	badShard := filepath.Join(dir, "shard_002.jsonl")
	content := `{"source_id":"b.mp4","sub_index":0,"start_ms":0,"end_ms":500,"created_at":100}
not json at all
{"source_id":"","sub_index":0}
{"source_id":"b.mp4","sub_index":1,"start_ms":600,"end_ms":900,"created_at":101}
`
	if err := os.WriteFile(badShard, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, corrupt, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
	if corrupt != 2 {
		t.Errorf("got %d corrupt rows, want 2", corrupt)
	}
}

func TestListOrdersShards(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []int{3, 1, 2} {
		w, err := NewWriter(dir, id)
		if err != nil {
			t.Fatal(err)
		}
		w.Close()
	}
	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	paths, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d shards, want 3: %v", len(paths), paths)
	}
	for i, want := range []string{"shard_001.jsonl", "shard_002.jsonl", "shard_003.jsonl"} {
		if filepath.Base(paths[i]) != want {
			t.Errorf("shard %d: got %s, want %s", i, filepath.Base(paths[i]), want)
		}
	}
}
