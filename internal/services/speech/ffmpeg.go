package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// demuxers maps container names to ffmpeg input format names where they differ
var demuxers = map[string]string{
	"m4a": "mov",
	"mp4": "mov",
}

// FFmpegDecoder normalizes audio by piping it through the ffmpeg binary
type FFmpegDecoder struct {
	path    string
	timeout time.Duration
}

// NewFFmpegDecoder creates a decoder that runs the ffmpeg binary at path
func NewFFmpegDecoder(path string, timeout time.Duration) *FFmpegDecoder {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FFmpegDecoder{path: path, timeout: timeout}
}

// Available reports whether the ffmpeg binary can be found
func (d *FFmpegDecoder) Available() bool {
	_, err := exec.LookPath(d.path)
	return err == nil
}

// Decode reads audio as the given container and writes mono 16 kHz PCM WAV
func (d *FFmpegDecoder) Decode(ctx context.Context, audio []byte, container string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	format := container
	if demuxer, ok := demuxers[container]; ok {
		format = demuxer
	}

	cmd := exec.CommandContext(ctx, d.path,
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", "pipe:0",
		"-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le",
		"-f", "wav", "pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(audio)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed to decode %s: %w: %s", container, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", container)
	}
	return stdout.Bytes(), nil
}
