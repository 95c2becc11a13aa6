package models

// WorkItem is one source file to be processed end-to-end.
type WorkItem struct {
	ID         string `json:"id"`          // stable relative name, unique within a run
	OriginPath string `json:"origin_path"` // location at the source
	StagedPath string `json:"staged_path"` // local copy, empty until staged
}

// Outcome is the terminal state of a WorkItem.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

// Detection is a single scorer output sample. Ephemeral; consumed by the
// segment extractor and never persisted individually.
type Detection struct {
	Timestamp float64 // seconds, monotonically increasing per source
	Score     float64 // scorer-defined confidence
}

// Interval is a merged, bounded time range derived from detections.
type Interval struct {
	Start float64 // seconds, inclusive
	End   float64 // seconds, exclusive, always > Start
	Score float64 // max detection score inside the interval
}

// Duration returns the interval length in seconds.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}
