package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
)

const sphinxConfidence = 0.7

// SphinxEngine transcribes offline with the pocketsphinx command line tool
type SphinxEngine struct {
	path string
}

// NewSphinxEngine creates an engine that runs the pocketsphinx binary at path
func NewSphinxEngine(path string) *SphinxEngine {
	if path == "" {
		path = "pocketsphinx"
	}
	return &SphinxEngine{path: path}
}

func (e *SphinxEngine) Name() string { return MethodSphinx }

func (e *SphinxEngine) Available(context.Context) bool {
	_, err := exec.LookPath(e.path)
	return err == nil
}

// sphinxHypothesis is one JSON line of `pocketsphinx single` output
type sphinxHypothesis struct {
	Text string `json:"t"`
}

func (e *SphinxEngine) Transcribe(ctx context.Context, wav []byte) (*models.TranscriptionResult, error) {
	tmp, err := os.CreateTemp("", "sphinx-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(wav); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, "single", tmp.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pocketsphinx failed: %w: %v: %s", apperr.ErrServiceUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	text := parseSphinxOutput(stdout.Bytes())
	if text == "" {
		return nil, fmt.Errorf("sphinx: %w", apperr.ErrUnintelligible)
	}
	return &models.TranscriptionResult{
		Transcription: text,
		Method:        MethodSphinx,
		Confidence:    sphinxConfidence,
		Language:      "en",
	}, nil
}

// parseSphinxOutput joins the hypothesis text of every JSON line, ignoring
// lines that are not hypotheses
func parseSphinxOutput(out []byte) string {
	var parts []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var hyp sphinxHypothesis
		if err := json.Unmarshal(scanner.Bytes(), &hyp); err != nil {
			continue
		}
		if t := strings.TrimSpace(hyp.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
