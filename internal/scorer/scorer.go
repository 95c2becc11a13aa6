// Package scorer defines the external inference boundary. The pipeline
// treats a scorer as a pure function with unbounded latency and owns no
// retry logic: a scorer error becomes a per-item failure record.
package scorer

import (
	"context"

	"kiru/internal/models"
)

// Scorer produces raw activity evidence for one staged media file.
type Scorer interface {
	// Name labels records emitted from this scorer's output.
	Name() string

	// Detections returns ordered per-timestamp samples for adaptive
	// extraction. An empty slice means no activity and is not an error.
	Detections(ctx context.Context, path string, duration float64) ([]models.Detection, error)

	// WindowScore returns a single confidence for a fixed window.
	WindowScore(ctx context.Context, path string, start, end float64) (float64, error)
}

// detectionStride is the spacing of emitted detections in seconds.
const detectionStride = 0.5
