package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-interview/internal/capture"
	"github.com/loqalabs/loqa-interview/internal/playback"
	"github.com/loqalabs/loqa-interview/internal/session"
)

const resumeRole = "resume-role"

const helpText = `Commands:
  <text>           answer in text mode
  /record [file]   record an answer (or send a recording from file) in voice mode
  /mode text|voice switch answer mode
  /end             request interview feedback
  /dismiss         hide feedback and keep answering
  /finish          end the session
  /play            replay the interviewer's last audio
  /status          show progress
  /quit            leave
`

type resumeUploader interface {
	UploadResume(ctx context.Context, filename string, document []byte) error
}

type shell struct {
	in    io.Reader
	out   io.Writer
	lines <-chan string
	roles []string
	mode  session.Mode

	ctrl     *session.Controller
	resume   resumeUploader
	recorder capture.Recorder
	player   playback.Player
	logger   *slog.Logger

	printed int
}

func newShell(in io.Reader, out io.Writer, roles []string, mode session.Mode) *shell {
	return &shell{in: in, out: out, roles: roles, mode: mode}
}

func (s *shell) attach(ctrl *session.Controller, resume resumeUploader, rec capture.Recorder, player playback.Player, logger *slog.Logger) {
	s.ctrl = ctrl
	s.resume = resume
	s.recorder = rec
	s.player = player
	s.logger = logger.With(slog.String("component", "shell"))
}

func (s *shell) sessionEnded(summary session.Summary) {
	fmt.Fprintf(s.out, "Session ended after %d answer(s).\n", summary.TurnCount)
}

// run drives sessions until the user quits, input ends or ctx is cancelled.
// role and resumePath apply to the first session only.
func (s *shell) run(ctx context.Context, role, resumePath string) error {
	s.lines = readLines(s.in)
	for {
		chosen, err := s.chooseRole(ctx, role, resumePath)
		role, resumePath = "", ""
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.ctrl.Start(ctx, chosen, s.mode); err != nil {
			return err
		}
		s.printed = 0
		fmt.Fprintf(s.out, "Interview for %s started in %s mode. Type /help for commands.\n", chosen, s.mode)
		s.render(ctx)

		quit, err := s.interact(ctx)
		if err != nil || quit {
			return err
		}
	}
}

func (s *shell) chooseRole(ctx context.Context, role, resumePath string) (string, error) {
	if resumePath != "" {
		if err := s.uploadResume(ctx, resumePath); err == nil {
			return resumeRole, nil
		}
	}
	if role != "" {
		return role, nil
	}

	for {
		fmt.Fprintln(s.out, "Choose a role:")
		for i, r := range s.roles {
			fmt.Fprintf(s.out, "  %d) %s\n", i+1, r)
		}
		fmt.Fprintln(s.out, "or type a custom role, /resume <file>, /quit")
		line, err := s.readLine(ctx, "role> ")
		if err != nil {
			return "", err
		}
		switch {
		case line == "":
			continue
		case line == "/quit":
			return "", io.EOF
		case strings.HasPrefix(line, "/resume"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/resume"))
			if path == "" {
				fmt.Fprintln(s.out, "Usage: /resume <file>")
				continue
			}
			if err := s.uploadResume(ctx, path); err == nil {
				return resumeRole, nil
			}
			continue
		}
		if n, err := strconv.Atoi(line); err == nil {
			if n >= 1 && n <= len(s.roles) {
				return s.roles[n-1], nil
			}
			fmt.Fprintln(s.out, "No such role.")
			continue
		}
		return line, nil
	}
}

func (s *shell) uploadResume(ctx context.Context, path string) error {
	doc, err := os.ReadFile(path)
	if err == nil {
		err = s.resume.UploadResume(ctx, path, doc)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Resume upload failed: %v\n", err)
		return err
	}
	fmt.Fprintln(s.out, "Resume uploaded.")
	return nil
}

// interact handles one session. It reports quit=true when the user leaves
// the program rather than just the session.
func (s *shell) interact(ctx context.Context) (bool, error) {
	for {
		line, err := s.readLine(ctx, "> ")
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return true, err
		}
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/help":
			fmt.Fprint(s.out, helpText)
		case "/quit":
			return true, nil
		case "/status":
			s.status()
		case "/mode":
			m, err := session.ParseMode(arg)
			if err != nil {
				fmt.Fprintln(s.out, "Usage: /mode text|voice")
				continue
			}
			if s.report(s.ctrl.SetMode(ctx, m)) {
				s.mode = m
				fmt.Fprintf(s.out, "Switched to %s mode.\n", m)
				s.render(ctx)
			}
		case "/record":
			if s.mode != session.ModeVoice {
				fmt.Fprintln(s.out, "Switch to voice mode first: /mode voice")
				continue
			}
			s.record(ctx, arg)
		case "/end":
			if s.report(s.ctrl.RequestEndInterview(ctx)) {
				s.render(ctx)
				s.showOverlay()
			}
		case "/dismiss":
			s.ctrl.DismissFeedback()
		case "/finish":
			if err := s.ctrl.FinishAndClose(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
				return false, err
			}
			return false, nil
		case "/play":
			s.replay(ctx)
		default:
			if strings.HasPrefix(cmd, "/") {
				fmt.Fprintf(s.out, "Unknown command %s. Type /help.\n", cmd)
				continue
			}
			if s.mode != session.ModeText {
				fmt.Fprintln(s.out, "Voice mode: use /record, or /mode text to type answers.")
				continue
			}
			if s.report(s.ctrl.SubmitText(ctx, line)) {
				s.render(ctx)
			}
		}
	}
}

func (s *shell) record(ctx context.Context, path string) {
	rec := s.recorder
	if path != "" {
		rec = capture.NewFileRecorder(path, s.logger)
	}
	fmt.Fprintln(s.out, "Recording...")
	blob, err := rec.Record(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Recording failed: %v\n", err)
		return
	}
	if s.report(s.ctrl.SubmitVoice(ctx, blob)) {
		s.render(ctx)
	}
}

// report prints controller errors and reports whether the call succeeded.
func (s *shell) report(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrTurnPending):
		fmt.Fprintln(s.out, "Still waiting on the previous answer.")
	case errors.Is(err, session.ErrSessionEnded), errors.Is(err, session.ErrNoSession):
		fmt.Fprintln(s.out, "The session has ended.")
	default:
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

// render prints messages appended since the last call and plays new
// interviewer audio.
func (s *shell) render(ctx context.Context) {
	snap := s.ctrl.Snapshot()
	if s.printed > len(snap.Messages) {
		s.printed = 0
	}
	for _, msg := range snap.Messages[s.printed:] {
		switch msg.Origin {
		case session.OriginUser:
			suffix := ""
			if msg.Status == session.StatusAbandoned {
				suffix = " (not sent)"
			}
			fmt.Fprintf(s.out, "You: %s%s\n", msg.Text, suffix)
		default:
			fmt.Fprintf(s.out, "Interviewer: %s\n", msg.Text)
			if msg.Audio != nil {
				s.play(ctx, msg)
			}
		}
	}
	s.printed = len(snap.Messages)
	fmt.Fprintf(s.out, "[Answers: %d/%d]\n", snap.TurnCount, snap.RequiredTurns)
}

func (s *shell) play(ctx context.Context, msg session.Message) {
	if err := s.player.Play(ctx, msg.Audio); err != nil {
		s.logger.Warn("playback failed", slog.String("message_id", msg.ID), slog.String("error", err.Error()))
	}
}

func (s *shell) replay(ctx context.Context) {
	msgs := s.ctrl.Snapshot().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Origin == session.OriginAssistant && msgs[i].Audio != nil {
			s.play(ctx, msgs[i])
			return
		}
	}
	fmt.Fprintln(s.out, "No interviewer audio to play.")
}

func (s *shell) status() {
	snap := s.ctrl.Snapshot()
	fmt.Fprintf(s.out, "Role: %s  Mode: %s  Answers: %d/%d\n", snap.Role, snap.Mode, snap.TurnCount, snap.RequiredTurns)
}

func (s *shell) showOverlay() {
	state := s.ctrl.Snapshot().Overlay
	if !state.Shown {
		return
	}
	if state.Content.IsError() {
		fmt.Fprintf(s.out, "=== Feedback unavailable ===\n%s\n", state.Content.Text)
	} else {
		fmt.Fprintf(s.out, "=== Interview feedback ===\n%s\n", state.Content.Text)
	}
	fmt.Fprintln(s.out, "Type /finish to end the session or /dismiss to keep going.")
}

func (s *shell) readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
