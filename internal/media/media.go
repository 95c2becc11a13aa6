// Package media wraps the ffmpeg/ffprobe invocations shared by scorers and
// clip extraction.
package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Duration returns the media duration in seconds using ffprobe. A missing
// or undecodable file yields an error, which callers record as a failed
// item rather than crashing.
func Duration(path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration for %s: %w", path, err)
	}
	return duration, nil
}

// PCMStream decodes a file (or a window of it when dur > 0) to mono 16-bit
// little-endian PCM at sampleRate via ffmpeg. The caller must drain the
// reader and then call the returned wait function.
func PCMStream(ctx context.Context, path string, sampleRate int, start, dur float64) (*bufio.Reader, func() error, error) {
	args := []string{}
	if start > 0 {
		args = append(args, "-ss", fmt.Sprintf("%f", start))
	}
	if dur > 0 {
		args = append(args, "-t", fmt.Sprintf("%f", dur))
	}
	args = append(args,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return bufio.NewReader(stdout), cmd.Wait, nil
}

// ReadSamples reads up to n samples from a PCM stream, converting to
// float32 in [-1, 1). Returns the samples read and io.EOF once the stream
// ends.
func ReadSamples(r io.Reader, n int) ([]float32, error) {
	buf := make([]byte, n*2)
	read, err := io.ReadFull(r, buf)
	if read == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	samples := make([]float32, read/2)
	for i := 0; i < len(samples); i++ {
		sample := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = float32(sample) / 32768.0
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return samples, io.EOF
	}
	return samples, err
}
