package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/mattn/go-shellwords"
)

// Player renders a decoded audio handle.
type Player interface {
	Play(ctx context.Context, h *audio.Handle) error
}

func New(cfg config.PlaybackConfig, logger *slog.Logger) (Player, error) {
	logger = logger.With(slog.String("component", "playback"))
	switch cfg.Mode {
	case "", "discard":
		return NewDiscardPlayer(logger), nil
	case "exec":
		return NewExecPlayer(cfg.Command, logger)
	default:
		return nil, fmt.Errorf("unknown playback mode %q", cfg.Mode)
	}
}

// DiscardPlayer drains the handle without producing sound.
type DiscardPlayer struct {
	logger *slog.Logger
}

func NewDiscardPlayer(logger *slog.Logger) *DiscardPlayer {
	return &DiscardPlayer{logger: logger}
}

func (d *DiscardPlayer) Play(_ context.Context, h *audio.Handle) error {
	rc, err := h.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		return err
	}
	d.logger.Debug("discarded audio", slog.String("handle", h.ID), slog.Int64("bytes", n))
	return nil
}

// ExecPlayer pipes audio bytes to an external player's stdin. The MIME type
// is passed as --mime-type.
type ExecPlayer struct {
	cmd    []string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewExecPlayer(command string, logger *slog.Logger) (*ExecPlayer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	return &ExecPlayer{cmd: args, logger: logger}, nil
}

// Play blocks until the player exits. Only one clip plays at a time.
func (e *ExecPlayer) Play(ctx context.Context, h *audio.Handle) error {
	rc, err := h.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.cmd[1:]...)
	if h.MimeType != "" {
		args = append(args, "--mime-type", h.MimeType)
	}
	cmd := exec.CommandContext(ctx, e.cmd[0], args...)
	cmd.Stdin = rc
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback command failed: %w: %s", err, stderr.String())
	}
	e.logger.Debug("played audio", slog.String("handle", h.ID), slog.Int("bytes", h.Size()))
	return nil
}
