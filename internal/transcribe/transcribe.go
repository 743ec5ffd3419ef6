// Package transcribe produces speech transcripts from downloaded media by
// demuxing the audio track and running it through whisper.cpp.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/eliasantony/recallr-api/pkg/ffmpeg"
	"github.com/eliasantony/recallr-api/pkg/whisper"
)

// Transcriber turns a local media file into transcript text. An empty string
// with a nil error means the media has no detectable speech.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (string, error)
}

type speechToText interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type extractAudioFn func(ctx context.Context, mediaPath string) (string, error)

// Whisper is the production Transcriber. It extracts a 16 kHz mono wav with
// ffmpeg, feeds it to whisper-cli and cleans up the intermediate file.
type Whisper struct {
	client       speechToText
	extractAudio extractAudioFn
	logger       *slog.Logger
}

func New(whisperPath, modelPath string) *Whisper {
	client := whisper.New()
	if strings.TrimSpace(whisperPath) != "" {
		client.Path = whisperPath
	}
	client.ModelPath = modelPath

	return &Whisper{
		client:       client,
		extractAudio: ffmpeg.ExtractWAV,
		logger:       slog.Default().With("component", "transcriber"),
	}
}

func (w *Whisper) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return "", fmt.Errorf("transcribe: mediaPath is required")
	}

	wavPath, err := w.extractAudio(ctx, mediaPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: extract audio: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(wavPath); rmErr != nil && !os.IsNotExist(rmErr) {
			w.logger.Warn("failed to remove intermediate wav", "path", wavPath, "err", rmErr)
		}
	}()

	text, err := w.client.Transcribe(ctx, wavPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return text, nil
}
