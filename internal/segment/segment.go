// Package segment converts per-timestamp detections into merged, bounded
// time intervals. Two modes exist: fixed windows for uniform coverage and
// adaptive merging around detections for precision.
package segment

import (
	"kiru/internal/models"
)

// Mode selects the extraction strategy for a run. Modes are never mixed
// within a run.
type Mode string

const (
	ModeFixed    Mode = "fixed"
	ModeAdaptive Mode = "adaptive"
)

// AdaptiveConfig holds tuning for adaptive extraction.
type AdaptiveConfig struct {
	// Buffer is the expansion in seconds applied on both sides of each
	// detection before merging.
	Buffer float64

	// MinLen and MaxLen bound the length of emitted intervals in seconds.
	// Intervals outside the bounds are dropped entirely, not clamped.
	// MaxLen <= 0 means unbounded above.
	MinLen float64
	MaxLen float64
}

// DefaultAdaptiveConfig uses a one second buffer either side of a
// detection and no length bounds.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Buffer: 1.0,
		MinLen: 0,
		MaxLen: 0,
	}
}

// FixedWindows partitions [0, duration) into consecutive windows of length
// chunkLen. The final window is truncated at duration. The union of the
// result covers [0, duration) exactly, with no gaps and no overlaps.
func FixedWindows(duration, chunkLen float64) []models.Interval {
	if duration <= 0 || chunkLen <= 0 {
		return nil
	}

	var intervals []models.Interval
	for start := 0.0; start < duration; start += chunkLen {
		end := start + chunkLen
		if end > duration {
			end = duration
		}
		intervals = append(intervals, models.Interval{Start: start, End: end})
	}
	return intervals
}

// MergeDetections expands each detection at time t to a provisional
// [t-buffer, t+buffer] interval clamped to [0, duration], merges
// overlapping or touching neighbors left to right, and filters the result
// to the configured length bounds. Detections must be ordered by timestamp.
// An empty result is valid and means no qualifying activity.
func MergeDetections(detections []models.Detection, duration float64, cfg AdaptiveConfig) []models.Interval {
	if len(detections) == 0 || duration <= 0 {
		return nil
	}

	var merged []models.Interval
	for _, d := range detections {
		start := d.Timestamp - cfg.Buffer
		if start < 0 {
			start = 0
		}
		end := d.Timestamp + cfg.Buffer
		if end > duration {
			end = duration
		}
		if end <= start {
			continue
		}

		if len(merged) > 0 && start <= merged[len(merged)-1].End {
			last := &merged[len(merged)-1]
			if end > last.End {
				last.End = end
			}
			if d.Score > last.Score {
				last.Score = d.Score
			}
		} else {
			merged = append(merged, models.Interval{Start: start, End: end, Score: d.Score})
		}
	}

	return filterByLength(merged, cfg.MinLen, cfg.MaxLen)
}

// filterByLength drops intervals shorter than minLen or longer than maxLen.
func filterByLength(intervals []models.Interval, minLen, maxLen float64) []models.Interval {
	var kept []models.Interval
	for _, iv := range intervals {
		d := iv.Duration()
		if d < minLen {
			continue
		}
		if maxLen > 0 && d > maxLen {
			continue
		}
		kept = append(kept, iv)
	}
	return kept
}
