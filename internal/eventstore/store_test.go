package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "events.db")
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "s", Type: "noop"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "s", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events, got %v (%v)", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "session"})

	sessionID := "session-123"
	if err := es.AppendSession(ctx, sessionID, "Software Engineer", "text"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	for _, text := range []string{"greeting", "answer", "follow-up"} {
		if err := es.AppendEvent(ctx, Event{SessionID: sessionID, Type: "message.appended", Origin: "assistant", Text: text}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	events, err := es.ListSessionEvents(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Text != "greeting" || events[2].Text != "follow-up" {
		t.Fatalf("events out of order: %+v", events)
	}
	if events[0].Payload != nil {
		t.Fatalf("expected nil payload, got %q", events[0].Payload)
	}
}

func TestEndSessionAndList(t *testing.T) {
	ctx := context.Background()
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "persistent"})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "first", "Sales Executive", "voice"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	es.clock = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "second", "Software Engineer", "text"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.EndSession(ctx, "first", 4); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sessions, err := es.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "second" {
		t.Fatalf("expected newest first, got %+v", sessions)
	}
	if sessions[1].TurnCount != 4 || sessions[1].EndedAt.IsZero() {
		t.Fatalf("expected first session ended with 4 turns, got %+v", sessions[1])
	}
	if !sessions[0].EndedAt.IsZero() {
		t.Fatalf("second session should still be open")
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	es := openTestStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "old-session", "role", "text"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "old-session", Type: "note"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "new-session", "role", "voice"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, err := es.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "new-session" {
		t.Fatalf("expected only new session, got %+v", sessions)
	}
}
