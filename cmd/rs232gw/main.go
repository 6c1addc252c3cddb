// Command rs232gw is the RS-232-to-SNMP PDU gateway binary.
//
// It loads a YAML configuration file, builds the Dispatcher, Serial
// Supervisor, and Scheduler, and runs until interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	rs232gw [flags]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vpbank/rs232gw/internal/app"
	"github.com/vpbank/rs232gw/internal/audit"
	"github.com/vpbank/rs232gw/internal/liveness"

	"flag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rs232gw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		logLevel      string
		logFmt        string
		supTimeoutSec int

		auditPath   string
		auditPretty bool

		livenessPath string
	)

	flag.StringVar(&configPath, "config", "/etc/rs232gw/config.yaml", "Path to the YAML configuration file")
	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.IntVar(&supTimeoutSec, "supervisor.timeout", 10, "External liveness protocol sup_timeout, in seconds")

	flag.StringVar(&auditPath, "audit.path", "", "Audit log file path (empty = stdout)")
	flag.BoolVar(&auditPretty, "audit.pretty", false, "Pretty-print audit JSON records")

	flag.StringVar(&livenessPath, "liveness.path", "", "Liveness log file path (empty = stderr)")

	flag.Parse()

	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	liveSink, liveFile, err := buildLivenessSink(livenessPath, logger)
	if err != nil {
		return fmt.Errorf("build liveness sink: %w", err)
	}
	if liveFile != nil {
		defer liveFile.Close()
	}

	auditSink, auditFile, err := buildAuditSink(auditPath, auditPretty, logger)
	if err != nil {
		return fmt.Errorf("build audit sink: %w", err)
	}
	if auditFile != nil {
		defer auditFile.Close()
	}

	cfg := app.Config{
		ConfigPath:        configPath,
		SupervisorTimeout: time.Duration(supTimeoutSec) * time.Second,
		Logger:            logger,
		Liveness:          liveSink,
		Audit:             auditSink,
	}

	application := app.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("rs232gw: running — press Ctrl-C to stop")

	<-ctx.Done()
	logger.Info("rs232gw: received shutdown signal")

	application.Stop()
	return nil
}

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

// buildLivenessSink opens path for append if given, otherwise the
// Notifier writes to its default of os.Stderr. Rotation is left to the
// host's log manager (logrotate, journald, a k8s log driver): this gateway
// only ever appends.
func buildLivenessSink(path string, logger *slog.Logger) (*liveness.WriterNotifier, *os.File, error) {
	if path == "" {
		return liveness.New(liveness.Config{}, logger), nil, nil
	}

	f, err := openAppend(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open liveness log %s: %w", path, err)
	}
	return liveness.New(liveness.Config{Writer: f}, logger), f, nil
}

// buildAuditSink opens path for append if given, otherwise the Sink writes
// to its default of os.Stdout.
func buildAuditSink(path string, pretty bool, logger *slog.Logger) (*audit.Sink, *os.File, error) {
	formatter := audit.New(audit.Config{PrettyPrint: pretty}, logger)

	if path == "" {
		return audit.NewSink(audit.SinkConfig{Formatter: formatter}, logger), nil, nil
	}

	f, err := openAppend(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return audit.NewSink(audit.SinkConfig{Writer: f, Formatter: formatter}, logger), f, nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
