package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-interview/internal/audio"
)

type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeVoice:
		return ModeVoice, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Status tracks whether a message still waits on the backend.
type Status int

const (
	StatusResolved Status = iota
	// StatusPending marks a voice placeholder awaiting its transcript.
	StatusPending
	// StatusAbandoned marks a placeholder whose upload failed; its sentinel
	// text stays in the log.
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "resolved"
	}
}

type Message struct {
	ID     string
	Origin Origin
	Text   string
	Audio  *audio.Handle
	Status Status
}

const (
	ProcessingText      = "…processing…"
	FallbackGreeting    = "Hello! Let's begin your interview."
	BackendErrorText    = "Backend error"
	FeedbackFailureText = "Could not generate interview feedback."
)

// RemainingTurnsText is shown when the interview cannot be ended yet.
func RemainingTurnsText(remaining int) string {
	return fmt.Sprintf("Please answer at least %d more question(s) before ending the interview.", remaining)
}

var (
	ErrNoSession     = errors.New("no active session")
	ErrSessionActive = errors.New("a session is already active")
	ErrTurnPending   = errors.New("a turn is already in flight")
	ErrSessionEnded  = errors.New("session ended before the response arrived")
)

// Snapshot is a copy of the session state safe to render from any goroutine.
type Snapshot struct {
	Active        bool
	ID            string
	Role          string
	Mode          Mode
	Messages      []Message
	TurnCount     int
	RequiredTurns int
	TurnPending   bool
	Overlay       OverlayState
}

// Summary is handed to the OnEnded callback after teardown.
type Summary struct {
	SessionID string
	Role      string
	TurnCount int
}
