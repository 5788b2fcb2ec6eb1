package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"go.uber.org/zap"
)

// writeScript installs an executable shell script standing in for a CLI.
// Tests using it do not run in parallel so a concurrent fork cannot hold the
// file open for writing while it is executed.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

// fakeFFmpeg echoes the input format it was asked to read, except for
// formats listed in the reject case
const fakeFFmpeg = `
fmt=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ] && [ -z "$fmt" ]; then fmt="$2"; fi
  shift
done
cat > /dev/null
case "$fmt" in
  webm|wav|mp3) echo "Invalid data found when processing input" >&2; exit 1 ;;
  *) printf 'RIFF:%s' "$fmt" ;;
esac
`

func TestFFmpegDecoder(t *testing.T) {
	decoder := NewFFmpegDecoder(writeScript(t, "ffmpeg", fakeFFmpeg), 5*time.Second)
	ctx := context.Background()

	if !decoder.Available() {
		t.Error("Expected decoder to be available")
	}

	out, err := decoder.Decode(ctx, []byte("audio"), "ogg")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(out) != "RIFF:ogg" {
		t.Errorf("Unexpected output %q", out)
	}

	out, err = decoder.Decode(ctx, []byte("audio"), "m4a")
	if err != nil {
		t.Fatalf("Decode m4a failed: %v", err)
	}
	if string(out) != "RIFF:mov" {
		t.Errorf("Expected m4a to use the mov demuxer, got %q", out)
	}

	_, err = decoder.Decode(ctx, []byte("audio"), "webm")
	if err == nil || !strings.Contains(err.Error(), "Invalid data") {
		t.Errorf("Expected ffmpeg stderr in error, got %v", err)
	}
}

func TestFFmpegDecoderMissingBinary(t *testing.T) {
	decoder := NewFFmpegDecoder(filepath.Join(t.TempDir(), "missing-ffmpeg"), time.Second)
	if decoder.Available() {
		t.Error("Expected missing binary to be unavailable")
	}
	if _, err := decoder.Decode(context.Background(), []byte("audio"), "wav"); err == nil {
		t.Error("Expected error for missing binary")
	}
}

func TestGatewayWithFFmpeg(t *testing.T) {
	decoder := NewFFmpegDecoder(writeScript(t, "ffmpeg", fakeFFmpeg), 5*time.Second)
	gw := NewGateway(decoder, zap.NewNop(), WithEngine(&fakeEngine{name: MethodWhisper, text: "heard"}))

	result, err := gw.Transcribe(context.Background(), []byte("opaque"), "", "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Transcription != "heard:RIFF:ogg" {
		t.Errorf("Expected first decodable container to win, got %q", result.Transcription)
	}
}

func TestSphinxEngine(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		script  string
		want    string
		wantErr error
	}{
		{
			name: "hypothesis lines are joined",
			script: `[ "$1" = "single" ] && [ -f "$2" ] || exit 2
printf 'INFO: loading model\n'
printf '{"b":0.000,"d":1.200,"p":1.000,"t":"hello there","w":[]}\n'
printf '{"b":1.200,"d":0.800,"p":1.000,"t":"general","w":[]}\n'
`,
			want: "hello there general",
		},
		{
			name:    "no text",
			script:  `printf '{"b":0.000,"d":1.200,"p":1.000,"t":"","w":[]}\n'`,
			wantErr: apperr.ErrUnintelligible,
		},
		{
			name:    "command failure",
			script:  `echo "model not found" >&2; exit 1`,
			wantErr: apperr.ErrServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewSphinxEngine(writeScript(t, "pocketsphinx", tt.script))
			if !engine.Available(ctx) {
				t.Error("Expected engine to be available")
			}
			result, err := engine.Transcribe(ctx, []byte("RIFF"))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transcribe failed: %v", err)
			}
			if result.Transcription != tt.want || result.Method != MethodSphinx || result.Confidence != sphinxConfidence {
				t.Errorf("Unexpected result %+v", result)
			}
		})
	}
}
