package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/loqalabs/loqa-interview/internal/audio"
)

// FileRecorder replays a recording that already exists on disk.
type FileRecorder struct {
	path   string
	logger *slog.Logger
}

func NewFileRecorder(path string, logger *slog.Logger) *FileRecorder {
	return &FileRecorder{path: path, logger: logger}
}

func (f *FileRecorder) Record(ctx context.Context) (audio.Blob, error) {
	if err := ctx.Err(); err != nil {
		return audio.Blob{}, err
	}
	if f.path == "" {
		return audio.Blob{}, errors.New("capture file path is not set")
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return audio.Blob{}, fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		return audio.Blob{}, audio.ErrEmptyBlob
	}
	mimeType := "application/octet-stream"
	if d, ok := wavDuration(bytes.NewReader(data)); ok {
		mimeType = wavMimeType
		f.logger.Debug("loaded recording", slog.String("path", f.path), slog.Duration("duration", d))
	}
	return audio.Blob{Data: data, MimeType: mimeType}, nil
}
