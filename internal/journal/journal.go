// Package journal fans session timeline events out to the configured sinks.
// Sink failures are logged and never reach the session controller.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/protocol"
)

// Sink receives session events.
type Sink interface {
	Record(ctx context.Context, evt protocol.SessionEvent) error
}

type Journal struct {
	sinks  []Sink
	logger *slog.Logger
}

func New(logger *slog.Logger, sinks ...Sink) *Journal {
	j := &Journal{logger: logger.With(slog.String("component", "journal"))}
	for _, s := range sinks {
		if s != nil {
			j.sinks = append(j.sinks, s)
		}
	}
	return j
}

func (j *Journal) Record(ctx context.Context, evt protocol.SessionEvent) {
	if j == nil {
		return
	}
	for _, s := range j.sinks {
		if err := s.Record(ctx, evt); err != nil {
			j.logger.Warn("failed to record session event",
				slog.String("type", evt.Type),
				slog.String("session_id", evt.SessionID),
				slog.String("error", err.Error()))
		}
	}
}

// StoreSink persists events into the SQLite event store.
type StoreSink struct {
	store *eventstore.Store
}

func NewStoreSink(store *eventstore.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Record(ctx context.Context, evt protocol.SessionEvent) error {
	switch evt.Type {
	case protocol.EventSessionStarted, protocol.EventModeChanged:
		if err := s.store.AppendSession(ctx, evt.SessionID, evt.Role, evt.Mode); err != nil {
			return fmt.Errorf("append session: %w", err)
		}
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := s.store.AppendEvent(ctx, eventstore.Event{
		SessionID: evt.SessionID,
		Type:      evt.Type,
		MessageID: evt.MessageID,
		Origin:    evt.Origin,
		Text:      evt.Text,
		Payload:   payload,
		CreatedAt: evt.Timestamp,
	}); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if evt.Type == protocol.EventSessionEnded {
		if err := s.store.EndSession(ctx, evt.SessionID, evt.TurnCount); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
	}
	return nil
}

// BusSink publishes events as JSON on <prefix>.<event type>.
type BusSink struct {
	client *bus.Client
	prefix string
}

func NewBusSink(client *bus.Client, prefix string) *BusSink {
	return &BusSink{client: client, prefix: prefix}
}

func (b *BusSink) Record(_ context.Context, evt protocol.SessionEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(protocol.Subject(b.prefix, evt.Type), data)
}
