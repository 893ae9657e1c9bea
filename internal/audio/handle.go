package audio

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var ErrReleased = errors.New("audio handle released")

// Handle is a decoded audio resource a player can open until released.
type Handle struct {
	ID       string
	MimeType string

	mu       sync.Mutex
	data     []byte
	size     int
	released bool
}

func newHandle(id, mimeType string, data []byte) *Handle {
	return &Handle{ID: id, MimeType: mimeType, data: data, size: len(data)}
}

// Size is the decoded byte length; it survives Release.
func (h *Handle) Size() int { return h.size }

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Open returns a reader over the decoded bytes.
func (h *Handle) Open() (io.ReadCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrReleased
	}
	return io.NopCloser(bytes.NewReader(h.data)), nil
}

// Bytes returns a copy of the decoded bytes.
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrReleased
	}
	return append([]byte(nil), h.data...), nil
}

// Release frees the bytes of an untracked handle.
func (h *Handle) Release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	h.data = nil
	return true
}

// Handles is the set of outstanding handles owned by one session.
type Handles struct {
	mu   sync.Mutex
	open map[string]*Handle
}

func NewHandles() *Handles {
	return &Handles{open: make(map[string]*Handle)}
}

func (s *Handles) Track(h *Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[h.ID] = h
}

// Release frees one handle. It reports whether the handle was outstanding.
func (s *Handles) Release(id string) bool {
	s.mu.Lock()
	h, ok := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	return h.Release()
}

// ReleaseAll frees every outstanding handle and returns how many were freed.
func (s *Handles) ReleaseAll() int {
	s.mu.Lock()
	open := s.open
	s.open = make(map[string]*Handle)
	s.mu.Unlock()

	released := 0
	for _, h := range open {
		if h.Release() {
			released++
		}
	}
	return released
}

func (s *Handles) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}
