package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeHandle(t *testing.T, payload string) *audio.Handle {
	t.Helper()
	h, err := audio.NewCodec(config.AudioConfig{}).Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return h
}

func TestDiscardPlayer(t *testing.T) {
	p := NewDiscardPlayer(newLogger())
	h := decodeHandle(t, "AAECAw==")
	if err := p.Play(context.Background(), h); err != nil {
		t.Fatalf("play: %v", err)
	}
	h.Release()
	if err := p.Play(context.Background(), h); !errors.Is(err, audio.ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}

func TestExecPlayerPipesBytes(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out := filepath.Join(t.TempDir(), "played.bin")
	p, err := NewExecPlayer(`sh -c 'cat > "$0"' `+out, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h := decodeHandle(t, "AAECAw==")
	if err := p.Play(context.Background(), h); err != nil {
		t.Fatalf("play: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "\x00\x01\x02\x03" {
		t.Fatalf("unexpected bytes %v", got)
	}
}

func TestExecPlayerFailure(t *testing.T) {
	if _, err := NewExecPlayer("", newLogger()); err == nil {
		t.Fatalf("expected error for empty command")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p, err := NewExecPlayer(`sh -c 'exit 1'`, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.Play(context.Background(), decodeHandle(t, "AAEC")); err == nil {
		t.Fatalf("expected playback failure")
	}
}

func TestNewSelectsMode(t *testing.T) {
	p, err := New(config.PlaybackConfig{Mode: "discard"}, newLogger())
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok := p.(*DiscardPlayer); !ok {
		t.Fatalf("expected discard player, got %T", p)
	}
	if _, err := New(config.PlaybackConfig{Mode: "speaker"}, newLogger()); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
