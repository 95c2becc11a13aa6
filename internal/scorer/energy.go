package scorer

import (
	"context"
	"io"
	"math"

	"kiru/internal/media"
	"kiru/internal/models"
)

// EnergyConfig holds tuning for the RMS-based scorer.
type EnergyConfig struct {
	// Threshold is the RMS level above which a frame counts as activity
	// (0.0-1.0). Lower values = more sensitive.
	Threshold float64

	// FrameSize is the number of samples per RMS frame.
	FrameSize int

	// SampleRate for decoding.
	SampleRate int
}

// DefaultEnergyConfig returns defaults tuned for 16 kHz speech/noise.
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		Threshold:  0.01, // RMS threshold (quite sensitive)
		FrameSize:  480,  // 30ms at 16kHz
		SampleRate: 16000,
	}
}

// Energy scores audio by frame RMS energy. It needs no model files, which
// makes it the fallback scorer and the one used for any-sound (not just
// voice) detection.
type Energy struct {
	cfg EnergyConfig
}

// NewEnergy returns an RMS energy scorer.
func NewEnergy(cfg EnergyConfig) *Energy {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 480
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Energy{cfg: cfg}
}

func (e *Energy) Name() string { return "energy" }

// Detections scans frame RMS values and emits one detection per stride in
// which any frame crossed the threshold, scored by the loudest frame.
func (e *Energy) Detections(ctx context.Context, path string, duration float64) ([]models.Detection, error) {
	frames, err := e.frameRMS(ctx, path, 0, 0)
	if err != nil {
		return nil, err
	}

	frameDuration := float64(e.cfg.FrameSize) / float64(e.cfg.SampleRate)
	framesPerStride := int(detectionStride / frameDuration)
	if framesPerStride < 1 {
		framesPerStride = 1
	}

	var detections []models.Detection
	for i := 0; i < len(frames); i += framesPerStride {
		end := i + framesPerStride
		if end > len(frames) {
			end = len(frames)
		}
		var peak float64
		for _, rms := range frames[i:end] {
			if rms > peak {
				peak = rms
			}
		}
		if peak >= e.cfg.Threshold {
			detections = append(detections, models.Detection{
				Timestamp: float64(i) * frameDuration,
				Score:     peak,
			})
		}
	}
	return detections, nil
}

// WindowScore returns the peak frame RMS within [start, end).
func (e *Energy) WindowScore(ctx context.Context, path string, start, end float64) (float64, error) {
	frames, err := e.frameRMS(ctx, path, start, end-start)
	if err != nil {
		return 0, err
	}
	var peak float64
	for _, rms := range frames {
		if rms > peak {
			peak = rms
		}
	}
	return peak, nil
}

// frameRMS decodes (a window of) the file and returns per-frame RMS values.
func (e *Energy) frameRMS(ctx context.Context, path string, start, dur float64) ([]float64, error) {
	reader, wait, err := media.PCMStream(ctx, path, e.cfg.SampleRate, start, dur)
	if err != nil {
		return nil, err
	}

	var frames []float64
	for {
		samples, err := media.ReadSamples(reader, e.cfg.FrameSize)
		if len(samples) > 0 {
			frames = append(frames, calculateRMS(samples))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			wait()
			return nil, err
		}
	}

	if err := wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// calculateRMS calculates the root mean square of samples.
func calculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
