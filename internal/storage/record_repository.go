package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kiru/internal/models"
)

// RecordRepository はマージ済みインデックスのデータアクセス層
type RecordRepository struct {
	db *DB
}

// NewRecordRepository は新しいRecordRepositoryを作成
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ReplaceAll はインデックス全体をマージ結果で置き換える。
// マージは純関数なので、同じ入力に対して常に同じテーブル内容になる。
func (r *RecordRepository) ReplaceAll(ctx context.Context, records []models.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (source_id, sub_index, start_ms, end_ms, label, confidence, clip_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.SourceID, rec.SubIndex, rec.StartMS, rec.EndMS,
			rec.Label, rec.Confidence, rec.ClipPath, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert record (%s,%d): %w", rec.SourceID, rec.SubIndex, err)
		}
	}

	return tx.Commit()
}

// List は(source_id, sub_index)順でレコード一覧を取得
func (r *RecordRepository) List(ctx context.Context, limit int) ([]models.Record, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_id, sub_index, start_ms, end_ms, label, confidence, clip_path, created_at
		FROM records ORDER BY source_id, sub_index LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListBySource はソースIDでレコード一覧を取得
func (r *RecordRepository) ListBySource(ctx context.Context, sourceID string) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_id, sub_index, start_ms, end_ms, label, confidence, clip_path, created_at
		FROM records WHERE source_id = ? ORDER BY sub_index`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count はレコード総数を取得
func (r *RecordRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

// RecordMergeRun はマージ実行の監査行を追加
func (r *RecordRepository) RecordMergeRun(ctx context.Context, mergedCount, corruptRows int) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO merge_runs (id, merged_count, corrupt_rows, created_at)
		VALUES (?, ?, ?, ?)`, id, mergedCount, corruptRows, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to record merge run: %w", err)
	}
	return id, nil
}

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	var records []models.Record
	for rows.Next() {
		var rec models.Record
		var label, clipPath sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&rec.SourceID, &rec.SubIndex, &rec.StartMS, &rec.EndMS,
			&label, &confidence, &clipPath, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Label = label.String
		rec.Confidence = confidence.Float64
		rec.ClipPath = clipPath.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
