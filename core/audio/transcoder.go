package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Transcoder converts an encoded audio payload into another format.
type Transcoder interface {
	Transcode(ctx context.Context, input []byte, to EncodingFormat) ([]byte, error)
}

var ErrTranscoderUnavailable = errors.New("audio transcoder unavailable")

// FFmpeg shells out to the ffmpeg binary, piping the payload through stdin
// and stdout.
type FFmpeg struct {
	Path string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Path: "ffmpeg"}
}

func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

func (f *FFmpeg) Transcode(ctx context.Context, input []byte, to EncodingFormat) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	if !f.Available() {
		return nil, fmt.Errorf("%w: %s not found", ErrTranscoderUnavailable, f.Path)
	}

	args, err := ffmpegArgs(to)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(lastLine(stderr.String())))
	}

	return stdout.Bytes(), nil
}

func ffmpegArgs(to EncodingFormat) ([]string, error) {
	base := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0", "-ac", "1"}
	switch to {
	case EncodingMP3:
		return append(base, "-ar", "16000", "-f", "mp3", "pipe:1"), nil
	case EncodingWAV:
		return append(base, "-ar", "16000", "-f", "wav", "pipe:1"), nil
	case EncodingLinear16:
		return append(base, "-ar", "16000", "-f", "s16le", "-acodec", "pcm_s16le", "pipe:1"), nil
	}
	return nil, fmt.Errorf("unsupported target encoding %q", to)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
