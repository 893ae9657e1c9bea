package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/backend"
	"github.com/loqalabs/loqa-interview/internal/protocol"
)

// Backend is the remote interview service as seen by the controller.
type Backend interface {
	Greet(ctx context.Context, mode, role string) (backend.Greeting, error)
	ChatText(ctx context.Context, query, role string) (backend.TextAnswer, error)
	VoiceChat(ctx context.Context, upload audio.Upload) (backend.VoiceAnswer, error)
	EndInterview(ctx context.Context) (backend.Feedback, error)
	ResetMemory(ctx context.Context) error
}

// Recorder receives the session timeline. It must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, evt protocol.SessionEvent)
}

type Options struct {
	RequiredTurns       int
	RegreetOnModeSwitch bool
	ResetTimeout        time.Duration
	Recorder            Recorder
	OnEnded             func(Summary)
	Logger              *slog.Logger
	Now                 func() time.Time
	NewID               func() string
}

type greetingKey struct {
	mode Mode
	role string
}

type state struct {
	id          string
	role        string
	mode        Mode
	messages    []Message
	turnCount   int
	turnPending bool
	generation  uint64
	greeted     bool
	greetingKey greetingKey
	overlay     *Overlay
	handles     *audio.Handles
}

func (s *state) indexOf(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Controller drives one interview session at a time. All methods are safe
// for concurrent use; backend calls run without holding the lock, and a
// response is applied only to the session that issued the request.
type Controller struct {
	backend Backend
	codec   *audio.Codec
	opts    Options
	logger  *slog.Logger
	metrics *metrics

	mu         sync.Mutex
	current    *state
	generation uint64
}

func NewController(b Backend, codec *audio.Codec, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 5 * time.Second
	}
	logger := opts.Logger.With(slog.String("component", "session-controller"))
	return &Controller{
		backend: b,
		codec:   codec,
		opts:    opts,
		logger:  logger,
		metrics: newMetrics(logger),
	}
}

// Start opens a session for role and fetches its greeting.
func (c *Controller) Start(ctx context.Context, role string, mode Mode) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.generation++
	s := &state{
		id:         c.opts.NewID(),
		role:       role,
		mode:       mode,
		generation: c.generation,
		overlay:    &Overlay{},
		handles:    audio.NewHandles(),
	}
	c.current = s
	c.mu.Unlock()

	c.metrics.sessionDelta(ctx, 1)
	c.logger.Info("session started", slog.String("session_id", s.id), slog.String("role", role), slog.String("mode", string(mode)))
	c.record(ctx, protocol.SessionEvent{SessionID: s.id, Type: protocol.EventSessionStarted, Role: role, Mode: string(mode)})

	return c.InitializeGreeting(ctx)
}

// InitializeGreeting seeds the log with the backend greeting, or a fixed
// fallback when the backend fails. It runs once per session unless
// re-greeting on mode switch is enabled and the (mode, role) key changed.
func (c *Controller) InitializeGreeting(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	key := greetingKey{mode: s.mode, role: s.role}
	if s.greeted && (!c.opts.RegreetOnModeSwitch || s.greetingKey == key) {
		c.mu.Unlock()
		return nil
	}
	s.greeted = true
	s.greetingKey = key
	gen := s.generation
	c.mu.Unlock()

	start := time.Now()
	greeting, err := c.backend.Greet(ctx, string(key.mode), key.role)
	c.metrics.backendCall(ctx, "greet", start, err)

	msg := Message{ID: c.opts.NewID(), Origin: OriginAssistant, Text: FallbackGreeting}
	if err != nil {
		c.logger.Warn("greeting failed, using fallback", slog.String("error", err.Error()))
	} else {
		msg.Text = greeting.Text
		if key.mode == ModeVoice {
			msg.Audio = c.decode(greeting.AudioBase64)
		}
	}

	sess, ok := c.apply(gen, msg.Audio, func(s *state) {
		s.messages = append(s.messages, msg)
	})
	if !ok {
		return ErrSessionEnded
	}
	c.recordMessage(ctx, sess, msg, protocol.EventMessageAppended)
	return nil
}

// SubmitText sends a typed answer. Blank input is ignored.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	userMsg := Message{ID: c.opts.NewID(), Origin: OriginUser, Text: text}
	sess, gen, err := c.beginTurn(func(s *state) {
		s.messages = append(s.messages, userMsg)
	})
	if err != nil {
		return err
	}
	c.recordMessage(ctx, sess, userMsg, protocol.EventMessageAppended)

	start := time.Now()
	answer, err := c.backend.ChatText(ctx, text, sess.role)
	c.metrics.backendCall(ctx, "chattext", start, err)

	reply := Message{ID: c.opts.NewID(), Origin: OriginAssistant, Text: BackendErrorText}
	if err != nil {
		c.logger.Warn("text turn failed", slog.String("session_id", sess.id), slog.String("error", err.Error()))
	} else {
		reply.Text = answer.Answer
	}

	sess, ok := c.apply(gen, nil, func(s *state) {
		s.turnPending = false
		if err == nil {
			s.turnCount++
		}
		s.messages = append(s.messages, reply)
	})
	if !ok {
		return ErrSessionEnded
	}
	if err == nil {
		c.metrics.turnCompleted(ctx, ModeText)
		c.recordTurn(ctx, sess)
	}
	c.recordMessage(ctx, sess, reply, protocol.EventMessageAppended)
	return nil
}

// SubmitVoice uploads a recorded answer. A pending placeholder holds the
// user's place in the log until the transcript arrives; if the upload fails
// the placeholder is marked abandoned and keeps its sentinel text.
func (c *Controller) SubmitVoice(ctx context.Context, blob audio.Blob) error {
	placeholder := Message{ID: c.opts.NewID(), Origin: OriginUser, Text: ProcessingText, Status: StatusPending}
	sess, gen, err := c.beginTurn(func(s *state) {
		s.messages = append(s.messages, placeholder)
	})
	if err != nil {
		return err
	}
	c.recordMessage(ctx, sess, placeholder, protocol.EventMessageAppended)

	var answer backend.VoiceAnswer
	upload, err := c.codec.PackageForUpload(blob, sess.role)
	if err == nil {
		start := time.Now()
		answer, err = c.backend.VoiceChat(ctx, upload)
		c.metrics.backendCall(ctx, "voice_chat", start, err)
	}

	reply := Message{ID: c.opts.NewID(), Origin: OriginAssistant, Text: BackendErrorText}
	resolved := Message{ID: placeholder.ID, Origin: OriginUser, Text: ProcessingText, Status: StatusAbandoned}
	if err != nil {
		c.logger.Warn("voice turn failed", slog.String("session_id", sess.id), slog.String("error", err.Error()))
	} else {
		resolved.Text = answer.Transcript
		resolved.Status = StatusResolved
		reply.Text = answer.Answer
		reply.Audio = c.decode(answer.AudioBase64)
	}

	sess, ok := c.apply(gen, reply.Audio, func(s *state) {
		s.turnPending = false
		if idx := s.indexOf(placeholder.ID); idx >= 0 {
			s.messages[idx] = resolved
		}
		if err == nil {
			s.turnCount++
		}
		s.messages = append(s.messages, reply)
	})
	if !ok {
		return ErrSessionEnded
	}
	c.recordMessage(ctx, sess, resolved, protocol.EventMessageResolved)
	if err == nil {
		c.metrics.turnCompleted(ctx, ModeVoice)
		c.recordTurn(ctx, sess)
	}
	c.recordMessage(ctx, sess, reply, protocol.EventMessageAppended)
	return nil
}

// RequestEndInterview asks for feedback once enough turns were answered.
// Below the threshold it only appends a reminder and makes no backend call.
func (c *Controller) RequestEndInterview(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if s.turnPending {
		c.mu.Unlock()
		return ErrTurnPending
	}
	decision := CanEnd(s.turnCount, c.requiredTurns())
	if !decision.Allowed {
		msg := Message{ID: c.opts.NewID(), Origin: OriginAssistant, Text: RemainingTurnsText(decision.Remaining)}
		s.messages = append(s.messages, msg)
		sess := *s
		c.mu.Unlock()
		c.recordMessage(ctx, &sess, msg, protocol.EventMessageAppended)
		return nil
	}
	s.turnPending = true
	gen := s.generation
	c.mu.Unlock()

	start := time.Now()
	feedback, err := c.backend.EndInterview(ctx)
	c.metrics.backendCall(ctx, "end_interview", start, err)

	content := Feedback(feedback.Text)
	if err != nil {
		c.logger.Warn("feedback request failed", slog.String("error", err.Error()))
		content = Failure(FeedbackFailureText)
	}

	sess, ok := c.apply(gen, nil, func(s *state) {
		s.turnPending = false
		s.overlay.Show(content)
	})
	if !ok {
		return ErrSessionEnded
	}
	c.record(ctx, protocol.SessionEvent{
		SessionID: sess.id,
		Type:      protocol.EventFeedbackShown,
		Text:      content.Text,
		Failed:    content.IsError(),
		TurnCount: sess.turnCount,
	})
	return nil
}

// SetMode switches between text and voice answers.
func (c *Controller) SetMode(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if s.mode == mode {
		c.mu.Unlock()
		return nil
	}
	s.mode = mode
	regreet := c.opts.RegreetOnModeSwitch && s.greeted && s.greetingKey != greetingKey{mode: mode, role: s.role}
	sess := *s
	c.mu.Unlock()

	c.record(ctx, protocol.SessionEvent{SessionID: sess.id, Type: protocol.EventModeChanged, Role: sess.role, Mode: string(mode), TurnCount: sess.turnCount})
	if regreet {
		return c.InitializeGreeting(ctx)
	}
	return nil
}

// EndSession tears the session down and asks the backend to forget it. The
// local teardown always happens; a failed reset is only logged.
func (c *Controller) EndSession(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.current = nil
	c.generation++
	released := s.handles.ReleaseAll()
	summary := Summary{SessionID: s.id, Role: s.role, TurnCount: s.turnCount}
	s.messages = nil
	c.mu.Unlock()

	c.metrics.sessionDelta(ctx, -1)

	resetCtx, cancel := context.WithTimeout(ctx, c.opts.ResetTimeout)
	start := time.Now()
	err := c.backend.ResetMemory(resetCtx)
	cancel()
	c.metrics.backendCall(ctx, "reset_memory", start, err)
	if err != nil {
		c.logger.Warn("memory reset failed", slog.String("session_id", summary.SessionID), slog.String("error", err.Error()))
	}

	c.logger.Info("session ended",
		slog.String("session_id", summary.SessionID),
		slog.Int("turns", summary.TurnCount),
		slog.Int("released_audio", released))
	c.record(ctx, protocol.SessionEvent{SessionID: summary.SessionID, Type: protocol.EventSessionEnded, Role: summary.Role, TurnCount: summary.TurnCount})

	if c.opts.OnEnded != nil {
		c.opts.OnEnded(summary)
	}
	return nil
}

// Overlay returns the feedback overlay of the active session, or nil.
func (c *Controller) Overlay() *Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.overlay
}

// DismissFeedback hides the feedback overlay.
func (c *Controller) DismissFeedback() {
	if o := c.Overlay(); o != nil {
		o.Dismiss()
	}
}

// FinishAndClose ends the session and dismisses its feedback overlay.
func (c *Controller) FinishAndClose(ctx context.Context) error {
	o := c.Overlay()
	if o == nil {
		return ErrNoSession
	}
	return o.FinishAndClose(ctx, c)
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{RequiredTurns: c.requiredTurns()}
	s := c.current
	if s == nil {
		return snap
	}
	snap.Active = true
	snap.ID = s.id
	snap.Role = s.role
	snap.Mode = s.mode
	snap.Messages = append([]Message(nil), s.messages...)
	snap.TurnCount = s.turnCount
	snap.TurnPending = s.turnPending
	snap.Overlay = s.overlay.State()
	return snap
}

// OutstandingAudio reports how many decoded handles the active session holds.
func (c *Controller) OutstandingAudio() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.handles.Outstanding()
}

func (c *Controller) requiredTurns() int {
	if c.opts.RequiredTurns > 0 {
		return c.opts.RequiredTurns
	}
	return DefaultRequiredTurns
}

// beginTurn marks a turn in flight and applies mutate under the lock.
func (c *Controller) beginTurn(mutate func(*state)) (*state, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current
	if s == nil {
		return nil, 0, ErrNoSession
	}
	if s.turnPending {
		return nil, 0, ErrTurnPending
	}
	s.turnPending = true
	mutate(s)
	sess := *s
	return &sess, s.generation, nil
}

// apply runs mutate against the session that issued a request, provided it
// is still current. Stale responses are dropped and their audio released.
func (c *Controller) apply(gen uint64, handle *audio.Handle, mutate func(*state)) (*state, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current
	if s == nil || s.generation != gen {
		if handle != nil {
			handle.Release()
		}
		c.logger.Debug("dropping response for ended session")
		return nil, false
	}
	s.handles.Track(handle)
	mutate(s)
	sess := *s
	return &sess, true
}

func (c *Controller) decode(payload string) *audio.Handle {
	if payload == "" {
		return nil
	}
	h, err := c.codec.Decode(payload)
	if err != nil {
		c.logger.Warn("failed to decode audio payload", slog.String("error", err.Error()))
		return nil
	}
	return h
}

func (c *Controller) record(ctx context.Context, evt protocol.SessionEvent) {
	if c.opts.Recorder == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = c.opts.Now().UTC()
	}
	c.opts.Recorder.Record(ctx, evt)
}

func (c *Controller) recordMessage(ctx context.Context, s *state, msg Message, eventType string) {
	c.record(ctx, protocol.SessionEvent{
		SessionID: s.id,
		Type:      eventType,
		Role:      s.role,
		Mode:      string(s.mode),
		MessageID: msg.ID,
		Origin:    string(msg.Origin),
		Text:      msg.Text,
		HasAudio:  msg.Audio != nil,
		TurnCount: s.turnCount,
		Failed:    msg.Status == StatusAbandoned,
	})
}

func (c *Controller) recordTurn(ctx context.Context, s *state) {
	c.record(ctx, protocol.SessionEvent{
		SessionID: s.id,
		Type:      protocol.EventTurnCompleted,
		Role:      s.role,
		Mode:      string(s.mode),
		TurnCount: s.turnCount,
	})
}
