package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecRecorder runs an external capture command that writes a finished
// recording to stdout. The command receives the capture parameters as
// --sample-rate, --channels and --duration-ms flags.
type ExecRecorder struct {
	cmd    []string
	cfg    config.CaptureConfig
	logger *slog.Logger
	mu     sync.Mutex
}

func NewExecRecorder(cfg config.CaptureConfig, logger *slog.Logger) (*ExecRecorder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &ExecRecorder{cmd: args, cfg: cfg, logger: logger}, nil
}

func (r *ExecRecorder) Record(ctx context.Context) (audio.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := append([]string{}, r.cmd[1:]...)
	if r.cfg.SampleRate > 0 {
		args = append(args, "--sample-rate", strconv.Itoa(r.cfg.SampleRate))
	}
	if r.cfg.Channels > 0 {
		args = append(args, "--channels", strconv.Itoa(r.cfg.Channels))
	}
	if r.cfg.DurationMS > 0 {
		args = append(args, "--duration-ms", strconv.Itoa(r.cfg.DurationMS))
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return audio.Blob{}, fmt.Errorf("capture command failed: %w: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return audio.Blob{}, audio.ErrEmptyBlob
	}

	data := stdout.Bytes()
	if d, ok := wavDuration(bytes.NewReader(data)); ok {
		r.logger.Debug("captured recording", slog.Duration("duration", d), slog.Int("bytes", len(data)))
	}
	return audio.Blob{Data: data, MimeType: wavMimeType}, nil
}
