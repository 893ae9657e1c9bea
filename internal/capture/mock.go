package capture

import (
	"context"
	"time"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/config"
)

// MockRecorder produces a silent WAV clip of the configured length.
type MockRecorder struct {
	sampleRate int
	channels   int
	duration   time.Duration
}

func NewMockRecorder(cfg config.CaptureConfig) *MockRecorder {
	m := &MockRecorder{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		duration:   time.Duration(cfg.DurationMS) * time.Millisecond,
	}
	if m.sampleRate <= 0 {
		m.sampleRate = 16000
	}
	if m.channels <= 0 {
		m.channels = 1
	}
	if m.duration <= 0 {
		m.duration = time.Second
	}
	return m
}

func (m *MockRecorder) Record(ctx context.Context) (audio.Blob, error) {
	if err := ctx.Err(); err != nil {
		return audio.Blob{}, err
	}
	frames := int(m.duration.Seconds() * float64(m.sampleRate))
	pcm := make([]byte, frames*m.channels*2)
	data, err := encodeWAV(pcm, m.sampleRate, m.channels)
	if err != nil {
		return audio.Blob{}, err
	}
	return audio.Blob{Data: data, MimeType: wavMimeType}, nil
}
