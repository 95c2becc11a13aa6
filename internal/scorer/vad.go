package scorer

import (
	"context"
	"fmt"
	"io"
	"os"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"kiru/internal/media"
	"kiru/internal/models"
)

// VADConfig holds configuration for the Silero VAD scorer.
type VADConfig struct {
	ModelPath          string  // Path to silero_vad.onnx
	Threshold          float32 // Speech detection threshold (0-1, default 0.5)
	MinSpeechDuration  float32 // Minimum speech duration in seconds (default 0.25)
	MinSilenceDuration float32 // Minimum silence duration to split (default 0.5)
	SampleRate         int
}

// DefaultVADConfig returns default VAD configuration.
func DefaultVADConfig(modelPath string) VADConfig {
	return VADConfig{
		ModelPath:          modelPath,
		Threshold:          0.5,
		MinSpeechDuration:  0.25,
		MinSilenceDuration: 0.5,
		SampleRate:         16000,
	}
}

// VAD scores audio with the Silero voice activity model. Detected speech
// spans are sampled into detections at the shared stride so the extractor
// sees the same shape of evidence as with any other scorer.
type VAD struct {
	cfg VADConfig
}

// NewVAD validates the model path and returns a VAD scorer.
func NewVAD(cfg VADConfig) (*VAD, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("VAD model not found: %s", cfg.ModelPath)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &VAD{cfg: cfg}, nil
}

func (v *VAD) Name() string { return "speech" }

// Detections runs VAD over the whole file and emits detections every
// stride inside each detected speech span.
func (v *VAD) Detections(ctx context.Context, path string, duration float64) ([]models.Detection, error) {
	spans, err := v.speechSpans(ctx, path, 0, 0)
	if err != nil {
		return nil, err
	}

	var detections []models.Detection
	for _, span := range spans {
		for ts := span.start; ts < span.end; ts += detectionStride {
			detections = append(detections, models.Detection{Timestamp: ts, Score: 1.0})
		}
	}
	return detections, nil
}

// WindowScore returns the fraction of the window covered by speech.
func (v *VAD) WindowScore(ctx context.Context, path string, start, end float64) (float64, error) {
	if end <= start {
		return 0, nil
	}
	spans, err := v.speechSpans(ctx, path, start, end-start)
	if err != nil {
		return 0, err
	}
	var covered float64
	for _, span := range spans {
		covered += span.end - span.start
	}
	return covered / (end - start), nil
}

type span struct {
	start, end float64
}

// speechSpans pipes PCM through the Silero VAD and collects speech spans
// in seconds, offset so they are relative to the start of the source.
func (v *VAD) speechSpans(ctx context.Context, path string, start, dur float64) ([]span, error) {
	vadModelConfig := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              v.cfg.ModelPath,
			Threshold:          v.cfg.Threshold,
			MinSilenceDuration: v.cfg.MinSilenceDuration,
			MinSpeechDuration:  v.cfg.MinSpeechDuration,
			WindowSize:         512,
		},
		SampleRate: v.cfg.SampleRate,
		NumThreads: 1,
		Debug:      0,
	}

	vad := sherpa.NewVoiceActivityDetector(&vadModelConfig, 30) // 30 seconds buffer
	if vad == nil {
		return nil, fmt.Errorf("failed to create VAD")
	}
	defer sherpa.DeleteVoiceActivityDetector(vad)

	reader, wait, err := media.PCMStream(ctx, path, v.cfg.SampleRate, start, dur)
	if err != nil {
		return nil, err
	}

	var spans []span
	drain := func() {
		for !vad.IsEmpty() {
			segment := vad.Front()
			vad.Pop()
			segStart := start + float64(segment.Start)/float64(v.cfg.SampleRate)
			segEnd := segStart + float64(len(segment.Samples))/float64(v.cfg.SampleRate)
			spans = append(spans, span{start: segStart, end: segEnd})
		}
	}

	for {
		samples, err := media.ReadSamples(reader, 512)
		if len(samples) > 0 {
			vad.AcceptWaveform(samples)
			drain()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			wait()
			return nil, err
		}
	}

	vad.Flush()
	drain()

	if err := wait(); err != nil {
		return nil, err
	}
	return spans, nil
}
