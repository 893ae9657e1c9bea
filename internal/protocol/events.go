package protocol

import "time"

// SessionEvent is one entry of an interview session timeline, persisted to
// the event store and published on the bus.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Role      string    `json:"role,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Text      string    `json:"text,omitempty"`
	HasAudio  bool      `json:"has_audio,omitempty"`
	TurnCount int       `json:"turn_count"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventSessionStarted  = "session.started"
	EventModeChanged     = "session.mode_changed"
	EventMessageAppended = "message.appended"
	EventMessageResolved = "message.resolved"
	EventTurnCompleted   = "turn.completed"
	EventFeedbackShown   = "feedback.shown"
	EventSessionEnded    = "session.ended"
)

// Subject builds the bus subject for an event type under prefix.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}
