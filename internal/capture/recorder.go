package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/config"
)

const wavMimeType = "audio/wav"

// Recorder captures one spoken answer.
type Recorder interface {
	Record(ctx context.Context) (audio.Blob, error)
}

// New builds the recorder selected by cfg.Mode.
func New(cfg config.CaptureConfig, logger *slog.Logger) (Recorder, error) {
	logger = logger.With(slog.String("component", "capture"))
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecorder(cfg), nil
	case "exec":
		return NewExecRecorder(cfg, logger)
	case "file":
		return NewFileRecorder(cfg.Path, logger), nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", cfg.Mode)
	}
}
