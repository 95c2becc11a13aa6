package storage

import (
	"context"
	"path/filepath"
	"testing"

	"kiru/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReplaceAllAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	records := []models.Record{
		{SourceID: "a.mp4", SubIndex: 0, StartMS: 0, EndMS: 1000, Label: "speech", Confidence: 0.9, CreatedAt: 100},
		{SourceID: "a.mp4", SubIndex: 1, StartMS: 2000, EndMS: 3000, Label: "speech", Confidence: 0.8, CreatedAt: 101},
		{SourceID: "b.mp4", SubIndex: 0, StartMS: 500, EndMS: 900, Label: "speech", Confidence: 0.7, CreatedAt: 102},
	}
	if err := repo.ReplaceAll(ctx, records); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	got, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].SourceID != "a.mp4" || got[0].SubIndex != 0 {
		t.Errorf("first record out of order: %+v", got[0])
	}

	// A second ReplaceAll with fewer rows leaves exactly those rows.
	if err := repo.ReplaceAll(ctx, records[:1]); err != nil {
		t.Fatalf("second ReplaceAll failed: %v", err)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d records after replace, want 1", n)
	}
}

func TestListBySource(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	records := []models.Record{
		{SourceID: "a.mp4", SubIndex: 1, StartMS: 2000, EndMS: 3000, CreatedAt: 101},
		{SourceID: "a.mp4", SubIndex: 0, StartMS: 0, EndMS: 1000, CreatedAt: 100},
		{SourceID: "b.mp4", SubIndex: 0, StartMS: 500, EndMS: 900, CreatedAt: 102},
	}
	if err := repo.ReplaceAll(ctx, records); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListBySource(ctx, "a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].SubIndex != 0 || got[1].SubIndex != 1 {
		t.Errorf("records not ordered by sub_index: %+v", got)
	}
}

func TestRecordMergeRun(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordRepository(db)

	id, err := repo.RecordMergeRun(context.Background(), 10, 2)
	if err != nil {
		t.Fatalf("RecordMergeRun failed: %v", err)
	}
	if id == "" {
		t.Error("empty merge run id")
	}
}
