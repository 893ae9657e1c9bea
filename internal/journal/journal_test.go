package journal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/natsserver"
	"github.com/loqalabs/loqa-interview/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type failingSink struct{ calls int }

func (f *failingSink) Record(context.Context, protocol.SessionEvent) error {
	f.calls++
	return errors.New("sink down")
}

type collectingSink struct{ events []protocol.SessionEvent }

func (c *collectingSink) Record(_ context.Context, evt protocol.SessionEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestJournalContinuesPastFailingSink(t *testing.T) {
	failing := &failingSink{}
	collecting := &collectingSink{}
	j := New(newLogger(), failing, nil, collecting)

	j.Record(context.Background(), protocol.SessionEvent{SessionID: "s1", Type: protocol.EventSessionStarted})

	if failing.calls != 1 || len(collecting.events) != 1 {
		t.Fatalf("expected both sinks invoked, got failing=%d collecting=%d", failing.calls, len(collecting.events))
	}
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	j.Record(context.Background(), protocol.SessionEvent{Type: protocol.EventSessionEnded})
}

func TestStoreSinkPersistsTimeline(t *testing.T) {
	ctx := context.Background()
	store, err := eventstore.Open(ctx, config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sink := NewStoreSink(store)
	now := time.Now().UTC()
	events := []protocol.SessionEvent{
		{SessionID: "s1", Type: protocol.EventSessionStarted, Role: "Software Engineer", Mode: "text", Timestamp: now},
		{SessionID: "s1", Type: protocol.EventMessageAppended, Origin: "assistant", Text: "Hello", Timestamp: now.Add(time.Millisecond)},
		{SessionID: "s1", Type: protocol.EventSessionEnded, TurnCount: 2, Timestamp: now.Add(2 * time.Millisecond)},
	}
	for _, evt := range events {
		if err := sink.Record(ctx, evt); err != nil {
			t.Fatalf("record %s: %v", evt.Type, err)
		}
	}

	stored, err := store.ListSessionEvents(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(stored) != 3 || stored[1].Text != "Hello" {
		t.Fatalf("unexpected events %+v", stored)
	}
	sessions, err := store.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].TurnCount != 2 || sessions[0].Role != "Software Engineer" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestBusSinkPublishes(t *testing.T) {
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Enabled: true, Embedded: true, Port: server.RANDOM_PORT, StoreDir: t.TempDir()}, log)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	sub, err := client.Conn().SubscribeSync("interview.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sink := NewBusSink(client, "interview")
	if err := sink.Record(context.Background(), protocol.SessionEvent{SessionID: "s1", Type: protocol.EventTurnCompleted, TurnCount: 3}); err != nil {
		t.Fatalf("record: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	if msg.Subject != "interview.turn.completed" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	var evt protocol.SessionEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.TurnCount != 3 || evt.SessionID != "s1" {
		t.Fatalf("unexpected event %+v", evt)
	}
}
