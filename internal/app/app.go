// Package app wires the gateway's components together and manages their
// lifecycle: Config/Factory builds the Devices, the Priority Dispatcher is
// started, the Serial Supervisor opens the device and begins reading, and
// the Scheduler drives healthcheck/supervisor-notify/reconnect-poll jobs.
// Adapted from pkg/snmpcollector/app/app.go's numbered start/stop ordering,
// generalized from a five-stage channel pipeline to a goroutine-per-component
// shape.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vpbank/rs232gw/internal/audit"
	"github.com/vpbank/rs232gw/internal/config"
	"github.com/vpbank/rs232gw/internal/device"
	"github.com/vpbank/rs232gw/internal/dispatcher"
	"github.com/vpbank/rs232gw/internal/liveness"
	"github.com/vpbank/rs232gw/internal/scheduler"
	"github.com/vpbank/rs232gw/internal/serial"
)

// Config holds the top-level settings for the gateway application.
type Config struct {
	// ConfigPath is the YAML document path.
	ConfigPath string

	// ReadTimeout defaults to 2s. Start does not pass it to the Serial
	// Supervisor: the serial read timeout, which also serves as the
	// retry-open backoff during startup, is the configuration document's
	// serial.timeout.
	ReadTimeout time.Duration

	// SupervisorTimeout is the external liveness protocol's sup_timeout;
	// the supervisor-notify job fires at half this interval. Default 10s.
	SupervisorTimeout time.Duration

	Logger   *slog.Logger
	Liveness liveness.Notifier

	// Audit, when set, receives one record per Retrying Request attempt
	// outcome, plus one per request that exhausts its attempts. nil disables
	// audit recording.
	Audit *audit.Sink

	// Open and Watch override the Serial Supervisor's device-open and
	// filesystem-watch seams. nil means the real OS-backed defaults.
	// Exposed here so tests can drive Start/Stop without a real tty.
	Open  serial.OpenFunc
	Watch func(dir string) (serial.Watcher, error)
}

func (c *Config) withDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.SupervisorTimeout <= 0 {
		c.SupervisorTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Liveness == nil {
		c.Liveness = liveness.New(liveness.Config{}, c.Logger)
	}
}

// App orchestrates the full gateway lifecycle. Create one with New, start
// it with Start, and stop it with Stop.
type App struct {
	cfg    Config
	logger *slog.Logger

	loaded  *config.Config
	devices map[string]*device.Device

	dispatcher *dispatcher.Dispatcher
	supervisor *serial.Supervisor
	sched      *scheduler.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an App. It does not start anything — call Start for that.
func New(cfg Config) *App {
	cfg.withDefaults()
	return &App{cfg: cfg, logger: cfg.Logger}
}

// Start loads configuration, builds the Devices, and launches the
// Dispatcher, Serial Supervisor, and Scheduler goroutines.
func (a *App) Start(ctx context.Context) error {
	a.cfg.Liveness.Publish("Initiating application")

	a.logger.Info("app: loading configuration", "path", a.cfg.ConfigPath)
	loaded, err := config.Load(a.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	a.loaded = loaded

	devices, err := config.BuildDevices(loaded)
	if err != nil {
		return fmt.Errorf("app: build devices: %w", err)
	}
	a.logger.Info("app: configuration loaded", "devices", len(devices))
	a.devices = devices

	pipeCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.dispatcher = dispatcher.New()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatcher.Run(pipeCtx)
	}()

	a.supervisor = serial.New(serial.Config{
		DevicePath:        loaded.Serial.Device,
		ReadTimeout:       loaded.Serial.Timeout,
		ReconnectInterval: 5 * time.Second,
		CyDelay:           loaded.PowerStates.CyDelay,
		Devices:           devices,
		Dispatcher:        a.dispatcher,
		Retry: serial.RetryConfig{
			PerAttemptTimeout: loaded.Retry.Timeout,
			MaxAttempts:       loaded.Retry.MaxAttempts,
			InterAttemptDelay: loaded.Retry.Delay,
		},
		Logger:   a.logger,
		Liveness: a.cfg.Liveness,
		Audit:    a.cfg.Audit,
		Open:     a.cfg.Open,
		Watch:    a.cfg.Watch,
	})
	if err := a.supervisor.Start(pipeCtx); err != nil {
		cancel()
		return fmt.Errorf("app: start serial supervisor: %w", err)
	}

	a.sched = scheduler.New(a.logger)
	a.sched.AddHealthcheck(loaded.Healthcheck.Frequency, func() {
		for _, dev := range devices {
			a.supervisor.SubmitHealthcheck(dev)
		}
	})
	a.sched.AddSupervisorNotify(a.cfg.SupervisorTimeout/2, func() {
		a.cfg.Liveness.Keepalive()
	})
	a.sched.AddReconnectPoll(5*time.Second, func() {
		a.supervisor.Reconnect(pipeCtx)
	}, func() bool { return !a.supervisor.IsUp() })

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Start(pipeCtx)
	}()

	a.logger.Info("app: running", "device_count", len(devices))
	return nil
}

// Stop performs an orderly shutdown: cancel every goroutine's context,
// close the serial handle without waiting for in-flight dispatcher jobs,
// then wait for the goroutines to exit.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")
	a.cfg.Liveness.Publish("Shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.supervisor != nil {
		a.supervisor.Stop()
	}
	a.wg.Wait()

	a.logger.Info("app: shutdown complete")
}

// Reload re-reads the configuration file and rebuilds Devices. It does not
// yet hot-swap the running Supervisor's device map — this is a best-effort
// refresh surfaced for operator tooling (e.g. a future SIGHUP handler), not
// a guaranteed in-place swap.
func (a *App) Reload() error {
	a.logger.Info("app: reloading configuration")
	loaded, err := config.Load(a.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}
	if _, err := config.BuildDevices(loaded); err != nil {
		return fmt.Errorf("app: reload build devices: %w", err)
	}
	a.loaded = loaded
	a.logger.Info("app: configuration reloaded", "devices", len(loaded.Devices))
	return nil
}

// SubmitManualToggle exposes the Serial Supervisor's manual-toggle seam
// for callers outside the serial stream, e.g. an operator-triggered
// HTTP/CLI action wired in by the caller.
func (a *App) SubmitManualToggle(ctx context.Context, deviceName, outlet string) error {
	dev, ok := a.devices[deviceName]
	if !ok {
		return fmt.Errorf("app: unknown device %q", deviceName)
	}
	a.supervisor.SubmitManualToggle(ctx, dev, outlet)
	return nil
}
