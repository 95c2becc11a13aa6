package origin

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
)

// YouTube is an Origin whose item ids are video ids; Fetch downloads the
// best available audio-only stream.
type YouTube struct {
	client ytdl.Client
}

// NewYouTube returns a YouTube-backed origin.
func NewYouTube() *YouTube {
	return &YouTube{}
}

// Fetch downloads the highest-bitrate audio format for the video id.
func (y *YouTube) Fetch(ctx context.Context, id, dest string) error {
	video, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get video %s: %w", id, err)
	}

	format := pickAudioFormat(video.Formats)
	if format == nil {
		return fmt.Errorf("no audio formats available for %s", id)
	}

	stream, _, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return fmt.Errorf("failed to get stream for %s: %w", id, err)
	}
	defer stream.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	_, err = copyWithContext(ctx, out, stream)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to download %s: %w", id, err)
	}
	return nil
}

// pickAudioFormat returns the audio-only format with the highest bitrate,
// preferring the default audio track when several languages exist.
func pickAudioFormat(formats ytdl.FormatList) *ytdl.Format {
	var audio []*ytdl.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		audio = append(audio, f)
	}
	if len(audio) == 0 {
		return nil
	}

	sort.Slice(audio, func(i, j int) bool {
		di := audio[i].AudioTrack != nil && audio[i].AudioTrack.AudioIsDefault
		dj := audio[j].AudioTrack != nil && audio[j].AudioTrack.AudioIsDefault
		if di != dj {
			return di
		}
		return audio[i].Bitrate > audio[j].Bitrate
	})
	return audio[0]
}
