package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/runtime"
	"github.com/loqalabs/loqa-interview/internal/session"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		role        string
		mode        string
		resumePath  string
		limit       int
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults plus environment when empty)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&role, "role", "", "Interview role (skips the role prompt)")
	flag.StringVar(&mode, "mode", "", "Answer mode: text or voice")
	flag.StringVar(&resumePath, "resume", "", "Upload a resume and interview for it")
	flag.IntVar(&limit, "limit", 20, "Number of sessions listed by the history command")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the interview shell.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flag.Arg(0) == "history" {
		if err := printHistory(ctx, cfg, logger, limit); err != nil {
			logger.Error("history failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	startMode := session.ModeVoice
	if m := firstNonEmpty(mode, cfg.Session.DefaultMode); m != "" {
		if startMode, err = session.ParseMode(m); err != nil {
			logger.Error("invalid mode", slog.String("error", err.Error()))
			os.Exit(2)
		}
	}

	sh := newShell(os.Stdin, os.Stdout, cfg.Session.Roles, startMode)
	rt := runtime.New(cfg, logger)
	if err := rt.Open(ctx, sh.sessionEnded); err != nil {
		logger.Error("runtime failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sh.attach(rt.Controller(), rt.Backend(), rt.Recorder(), rt.Player(), logger)

	runErr := sh.run(ctx, role, resumePath)

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	if runErr != nil && ctx.Err() == nil {
		logger.Error("interview shell exited with error", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func printHistory(ctx context.Context, cfg config.Config, logger *slog.Logger, limit int) error {
	store, err := eventstore.Open(ctx, cfg.EventStore, logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tROLE\tMODE\tTURNS\tSTARTED\tENDED")
	for _, s := range sessions {
		ended := "-"
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.ID, s.Role, s.Mode, s.TurnCount, s.CreatedAt.Local().Format(time.DateTime), ended)
	}
	return tw.Flush()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
