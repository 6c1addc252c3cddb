// Package serial implements the Serial Supervisor (C6): it owns the serial
// handle, reads and frames bytes, parses completed segments, submits
// resulting commands to the Priority Dispatcher, and reconnects on I/O
// faults. Grounded on rs232topdu.py's Rs232ToPdu and serialconn.py,
// translated from asyncio's add_reader callback model to a dedicated reader
// goroutine performing a blocking Read with timeout.
package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vpbank/rs232gw/internal/audit"
	"github.com/vpbank/rs232gw/internal/device"
	"github.com/vpbank/rs232gw/internal/dispatcher"
	"github.com/vpbank/rs232gw/internal/parser"
	"github.com/vpbank/rs232gw/internal/retry"
)

// Liveness is the subset of internal/liveness.Notifier the Supervisor needs.
// Declared locally, so internal/serial does not import internal/liveness.
type Liveness interface {
	Publish(status string)
}

// Liveness status strings published at each open/close transition.
const (
	StatusOpening        = "Opening serial port"
	StatusOpened         = "Serial port successfully opened"
	StatusClosing        = "Closing serial port"
	StatusOpenFailed     = "Failed to open serial device"
)

// RetryConfig carries the Retrying Request parameters every submission on
// this Supervisor uses.
type RetryConfig struct {
	PerAttemptTimeout time.Duration
	MaxAttempts       int
	InterAttemptDelay time.Duration
}

// Config configures a Supervisor.
type Config struct {
	DevicePath        string
	ReadTimeout       time.Duration
	ReconnectInterval time.Duration // default 5s
	CyDelay           time.Duration
	Devices           map[string]*device.Device // keyed by zero-padded 3-digit name
	Dispatcher        *dispatcher.Dispatcher
	Retry             RetryConfig
	Logger            *slog.Logger
	Liveness          Liveness
	Audit             *audit.Sink // optional; nil disables audit recording
	Open              OpenFunc    // defaults to OpenTermios
	Watch             func(dir string) (Watcher, error)
}

// Watcher is the subset of fsnotify.Watcher the Supervisor needs, declared
// as an interface for testability.
type Watcher interface {
	Events() <-chan fsnotify.Event
	Close() error
}

// Supervisor owns the serial handle for the life of the process (or until
// Stop).
type Supervisor struct {
	cfg Config

	mu           sync.Mutex
	port         Port
	up           bool
	reconnecting bool
	buf          readBuffer

	counterMu sync.Mutex
	cmdCounter uint64
}

// New constructs a Supervisor. Devices, Dispatcher, and Retry must already
// be populated; Start performs no config validation (that is C8's job).
func New(cfg Config) *Supervisor {
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.Open == nil {
		cfg.Open = OpenTermios
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{cfg: cfg}
}

// Start opens the serial device (state DOWN -> UP) and launches the reader
// goroutine. It blocks retrying the open until it succeeds or ctx is
// cancelled, matching the original's startup loop.
func (s *Supervisor) Start(ctx context.Context) error {
	for {
		if err := s.open(); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReadTimeout):
		}
	}

	go s.readLoop(ctx)
	return nil
}

// Stop closes the serial handle. Unread bytes are discarded: a later
// reconnect always starts from a fresh stream.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		s.cfg.Liveness.Publish(StatusClosing)
		_ = s.port.Close()
		s.port = nil
		s.up = false
	}
}

func (s *Supervisor) open() error {
	s.cfg.Liveness.Publish(StatusOpening)
	p, err := s.cfg.Open(s.cfg.DevicePath, s.cfg.ReadTimeout)
	if err != nil {
		s.cfg.Liveness.Publish(StatusOpenFailed)
		s.cfg.Logger.Error("serial: failed to open device", "path", s.cfg.DevicePath, "error", err.Error())
		return err
	}

	s.mu.Lock()
	s.port = p
	s.up = true
	s.buf = readBuffer{} // residual bytes from before a disconnect are dropped
	s.mu.Unlock()

	s.cfg.Liveness.Publish(StatusOpened)
	s.cfg.Logger.Info("serial: opened device", "path", s.cfg.DevicePath)
	return nil
}

// readLoop performs a blocking Read with timeout on its own goroutine — the
// Go idiom substitute for asyncio's add_reader callback. A read timeout is
// not a fault: it simply means no bytes arrived this cycle.
// Any other error triggers the fault state machine and ends this goroutine;
// a successful reconnect starts a fresh readLoop.
func (s *Supervisor) readLoop(ctx context.Context) {
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		port := s.port
		s.mu.Unlock()
		if port == nil {
			return
		}

		n, err := port.Read(readBuf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			s.handleIOFault(ctx, err)
			return
		}
		if n == 0 {
			continue
		}

		for _, segment := range s.drain(readBuf[:n]) {
			s.handleSegment(ctx, segment)
		}
	}
}

// drain feeds newly read bytes into the Read Buffer and returns completed
// segments.
func (s *Supervisor) drain(newBytes []byte) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.drain(newBytes)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// handleSegment parses one completed segment and translates a successful
// parse into dispatcher submissions.
func (s *Supervisor) handleSegment(ctx context.Context, segment string) {
	cmd, err := parser.Parse(segment)
	if err != nil {
		s.cfg.Logger.Warn("serial: failed to parse segment", "segment", segment, "error", err.Error())
		return
	}

	switch cmd.Verb {
	case parser.VerbQuit, parser.VerbEmpty:
		s.cfg.Logger.Info("serial: quit or empty sequence", "verb", cmd.Verb)
		return
	}

	deviceName := fmt.Sprintf("%03d", cmd.DeviceID)
	outlet := fmt.Sprintf("%03d", cmd.OutletID)

	dev, ok := s.cfg.Devices[deviceName]
	if !ok {
		s.cfg.Logger.Error("serial: unknown device", "device", deviceName, "outlet", outlet, "verb", cmd.Verb)
		return
	}

	verb := string(cmd.Verb)
	switch {
	case dev.HasPowerState(verb):
		s.submitSet(ctx, dev, outlet, verb)
	case cmd.Verb == parser.VerbCy:
		// Synthesize OFF -> sleep cy_delay -> ON. Runs on its own goroutine
		// started here at the submit site, not inside the Dispatcher, so the
		// reader keeps reading during the sleep — other submissions may
		// interleave between the two, and must not be serialized away.
		go s.synthesizeCycle(ctx, dev, outlet)
	default:
		s.cfg.Logger.Error("serial: unknown power state", "device", deviceName, "outlet", outlet, "verb", verb)
	}
}

func (s *Supervisor) synthesizeCycle(ctx context.Context, dev *device.Device, outlet string) {
	s.submitSet(ctx, dev, outlet, string(parser.VerbOf))

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.CyDelay):
	}

	s.submitSet(ctx, dev, outlet, string(parser.VerbOn))
}

func (s *Supervisor) nextCommandID() string {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.cmdCounter++
	return fmt.Sprintf("cmd-%d", s.cmdCounter)
}

// submitSet enqueues one low-priority SET request.
func (s *Supervisor) submitSet(ctx context.Context, dev *device.Device, outlet, verb string) {
	req := &retry.Request{
		CommandID:         s.nextCommandID(),
		Kind:              retry.KindSet,
		Device:            dev,
		Outlet:            outlet,
		Verb:              verb,
		PerAttemptTimeout: s.cfg.Retry.PerAttemptTimeout,
		MaxAttempts:       s.cfg.Retry.MaxAttempts,
		InterAttemptDelay: s.cfg.Retry.InterAttemptDelay,
		Audit:             s.cfg.Audit,
	}
	s.cfg.Dispatcher.Submit(func(actionCtx context.Context) {
		req.Run(actionCtx, s.cfg.Logger)
	}, false)
}

// SubmitHealthcheck enqueues one high-priority GET of dev's first outlet,
// used by the Scheduler's healthcheck job.
func (s *Supervisor) SubmitHealthcheck(dev *device.Device) {
	req := &retry.Request{
		CommandID:         s.nextCommandID(),
		Kind:              retry.KindGet,
		Device:            dev,
		Outlet:            dev.HealthcheckOutlet(),
		PerAttemptTimeout: s.cfg.Retry.PerAttemptTimeout,
		MaxAttempts:       s.cfg.Retry.MaxAttempts,
		InterAttemptDelay: s.cfg.Retry.InterAttemptDelay,
		Audit:             s.cfg.Audit,
	}
	s.cfg.Dispatcher.Submit(func(actionCtx context.Context) {
		req.Run(actionCtx, s.cfg.Logger)
	}, true)
}

// SubmitManualToggle exposes an outlet_manual_toggle seam for callers
// outside the serial stream. It runs the same OFF -> sleep -> ON synthesis
// as a cy command.
func (s *Supervisor) SubmitManualToggle(ctx context.Context, dev *device.Device, outlet string) {
	go s.synthesizeCycle(ctx, dev, outlet)
}

// IsUp reports whether the serial handle is currently open.
func (s *Supervisor) IsUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.up
}
