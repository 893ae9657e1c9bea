package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV wraps 16-bit little-endian PCM in a WAV container. The encoder
// needs a seekable sink, so the container is assembled in a temp file.
func encodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	file, err := os.CreateTemp("", "loqa_capture_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buffer := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}}
	buffer.Data = make([]int, len(pcm)/2)
	for i := range buffer.Data {
		buffer.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind wav: %w", err)
	}
	return io.ReadAll(file)
}

// wavDuration reads the header of a WAV recording. ok is false for anything
// the decoder does not recognise.
func wavDuration(r io.ReadSeeker) (time.Duration, bool) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0, false
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, false
	}
	return d, true
}
