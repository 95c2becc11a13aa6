// Package clip extracts interval clips from staged media with ffmpeg
// stream copy (no re-encode).
package clip

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kiru/internal/models"
)

// Extract cuts the interval out of src into outDir. The output name
// encodes the source base name, label, and rounded start/end seconds,
// e.g. 20240101_people_12-19s.mp4.
func Extract(ctx context.Context, src, outDir, label string, iv models.Interval) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create clip directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	name := fmt.Sprintf("%s_%s_%d-%ds%s", base, label, int(iv.Start), int(iv.End), filepath.Ext(src))
	out := filepath.Join(outDir, name)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", src,
		"-ss", fmt.Sprintf("%f", iv.Start),
		"-t", fmt.Sprintf("%f", iv.Duration()),
		"-c", "copy",
		"-loglevel", "error",
		out, "-y",
	)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg clip extraction failed: %w", err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("clip not written: %w", err)
	}
	return out, nil
}
