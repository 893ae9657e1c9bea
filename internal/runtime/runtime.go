package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/backend"
	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/capture"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/journal"
	"github.com/loqalabs/loqa-interview/internal/natsserver"
	"github.com/loqalabs/loqa-interview/internal/playback"
	"github.com/loqalabs/loqa-interview/internal/session"
)

// Runtime owns every long-lived component of the interview client and
// tears them down in reverse order.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	telemetryClose func(context.Context) error
	metricsHandler http.Handler
	httpServer     *http.Server
	listener       net.Listener
	ready          atomic.Bool
	wg             sync.WaitGroup

	store      *eventstore.Store
	embedded   *natsserver.EmbeddedServer
	busClient  *bus.Client
	journal    *journal.Journal
	backend    *backend.Client
	codec      *audio.Codec
	recorder   capture.Recorder
	player     playback.Player
	controller *session.Controller
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Open starts all components. On error everything already started is closed.
func (r *Runtime) Open(ctx context.Context, onEnded func(session.Summary)) (err error) {
	defer func() {
		if err != nil {
			_ = r.Close(context.Background())
		}
	}()

	r.telemetryClose, r.metricsHandler, err = setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		r.embedded, err = natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		if r.embedded != nil {
			busCfg.Servers = []string{r.embedded.ClientURL()}
		}
		r.busClient, err = bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
	}

	var sinks []journal.Sink
	if r.store != nil {
		sinks = append(sinks, journal.NewStoreSink(r.store))
	}
	if r.busClient != nil {
		sinks = append(sinks, journal.NewBusSink(r.busClient, r.cfg.Bus.SubjectPrefix))
	}
	r.journal = journal.New(r.logger, sinks...)

	r.recorder, err = capture.New(r.cfg.Capture, r.logger)
	if err != nil {
		return err
	}
	r.player, err = playback.New(r.cfg.Playback, r.logger)
	if err != nil {
		return err
	}

	r.backend = backend.NewClient(r.cfg.Backend, r.logger)
	r.codec = audio.NewCodec(r.cfg.Audio)
	r.controller = session.NewController(r.backend, r.codec, session.Options{
		RequiredTurns:       r.cfg.Session.RequiredTurns,
		RegreetOnModeSwitch: r.cfg.Session.RegreetOnModeSwitch,
		ResetTimeout:        time.Duration(r.cfg.Backend.ResetTimeoutMS) * time.Millisecond,
		Recorder:            r.journal,
		OnEnded:             onEnded,
		Logger:              r.logger,
	})

	if r.cfg.HTTP.Enabled {
		if err = r.startHTTP(); err != nil {
			return err
		}
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("backend", r.cfg.Backend.BaseURL))
	return nil
}

func (r *Runtime) startHTTP() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil {
		mux.Handle("/metrics", r.metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.listener = ln
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Close ends any active session and stops every component.
func (r *Runtime) Close(ctx context.Context) error {
	r.ready.Store(false)
	if r.controller != nil && r.controller.Active() {
		if err := r.controller.EndSession(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
			r.logger.Warn("end session on shutdown failed", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		r.wg.Wait()
		r.httpServer = nil
	}
	if r.busClient != nil {
		r.busClient.Close()
		r.busClient = nil
	}
	r.embedded.Shutdown()
	r.embedded = nil
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event store: %w", err))
		}
		r.store = nil
	}
	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		r.telemetryClose = nil
	}
	return errors.Join(errs...)
}

func (r *Runtime) Controller() *session.Controller { return r.controller }
func (r *Runtime) Backend() *backend.Client        { return r.backend }
func (r *Runtime) Recorder() capture.Recorder      { return r.recorder }
func (r *Runtime) Player() playback.Player         { return r.player }
func (r *Runtime) Store() *eventstore.Store        { return r.store }

// Addr is the bound address of the health server, or "" when disabled.
func (r *Runtime) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.busClient == nil || r.busClient.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
