package models

import (
	"strconv"
	"time"
)

// Record is one persisted metadata row for an extracted interval.
// (source_id, sub_index) is the composite key in the merged index.
type Record struct {
	SourceID   string  `json:"source_id"`
	SubIndex   int     `json:"sub_index"` // 0-based position within the source
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Label      string  `json:"label,omitempty"`      // scorer name, e.g. "speech"
	Confidence float64 `json:"confidence,omitempty"` // scorer-defined
	ClipPath   string  `json:"clip_path,omitempty"`  // set when clip emission is enabled
	CreatedAt  int64   `json:"created_at"`           // unix millis at shard write, merge tie-break key
}

// Key returns the composite merge key.
func (r Record) Key() string {
	return r.SourceID + "\x00" + strconv.Itoa(r.SubIndex)
}

// RunReport summarizes one pipeline run for logging and the status endpoint.
type RunReport struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	Scorer      string    `json:"scorer"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	CorruptRows int       `json:"corrupt_rows"`
	Merged      int       `json:"merged"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
