package session

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	turns          metric.Int64Counter
	failures       metric.Int64Counter
	latency        metric.Float64Histogram
	activeSessions metric.Int64UpDownCounter
}

func newMetrics(logger *slog.Logger) *metrics {
	meter := otel.Meter("github.com/loqalabs/loqa-interview/session")
	m := &metrics{}
	var err error
	if m.turns, err = meter.Int64Counter("interview.turns.completed",
		metric.WithDescription("Answer turns confirmed by the backend")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("error", err.Error()))
	}
	if m.failures, err = meter.Int64Counter("interview.backend.failures",
		metric.WithDescription("Backend calls that fell back to a local value")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("error", err.Error()))
	}
	if m.latency, err = meter.Float64Histogram("interview.backend.latency",
		metric.WithDescription("Backend call latency"), metric.WithUnit("ms")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("error", err.Error()))
	}
	if m.activeSessions, err = meter.Int64UpDownCounter("interview.sessions.active",
		metric.WithDescription("Sessions currently in progress")); err != nil {
		logger.Warn("failed to initialize metric", slog.String("error", err.Error()))
	}
	return m
}

func (m *metrics) turnCompleted(ctx context.Context, mode Mode) {
	if m.turns != nil {
		m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(mode))))
	}
}

func (m *metrics) backendCall(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	if m.latency != nil {
		m.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	}
	if err != nil && m.failures != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

func (m *metrics) sessionDelta(ctx context.Context, delta int64) {
	if m.activeSessions != nil {
		m.activeSessions.Add(ctx, delta)
	}
}
