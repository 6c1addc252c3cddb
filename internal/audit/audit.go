// Package audit implements the Audit Log Formatter (C11): one structured
// JSON record per Retrying Request attempt outcome, plus one when a request
// exhausts its attempts, a greppable record
// instead of ad hoc log lines. Adapted from format/json/formatter.go's
// Formatter interface and encoding/json-marshal idiom, repurposed from
// models.SNMPMetric to Outcome.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Classification mirrors the Retrying Request's terminal outcome kinds.
type Classification string

const (
	Success               Classification = "success"
	ProtocolFailure        Classification = "protocol_failure"
	Timeout                Classification = "timeout"
	MaxAttemptsExhausted   Classification = "max_attempts_exhausted"
)

// Outcome is one audit record: the command that was attempted, and how it
// resolved.
type Outcome struct {
	Timestamp      time.Time        `json:"timestamp"`
	CommandID      string           `json:"command_id"`
	Device         string           `json:"device"`
	Outlet         string           `json:"outlet"`
	Verb           string           `json:"verb,omitempty"`
	Kind           string           `json:"kind"` // "get" or "set"
	Attempt        int              `json:"attempt"`
	Classification Classification   `json:"classification"`
	EngineError    string           `json:"engine_error,omitempty"`
	PDUStatus      gosnmp.SNMPError `json:"pdu_status,omitempty"`
	ErrorIndex     uint8            `json:"error_index,omitempty"`
}

// Formatter serialises an Outcome into a byte slice. Declared so alternative
// formats can be swapped in without touching callers.
type Formatter interface {
	Format(o *Outcome) ([]byte, error)
}

// Config controls JSONFormatter behaviour.
type Config struct {
	PrettyPrint bool
	Indent      string
}

// JSONFormatter implements Formatter using encoding/json.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises o to JSON.
func (f *JSONFormatter) Format(o *Outcome) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("audit: outcome must not be nil")
	}

	var (
		data []byte
		err  error
	)
	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(o, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(o)
	}
	if err != nil {
		f.logger.Error("audit: marshal failed", "command_id", o.CommandID, "error", err.Error())
		return nil, fmt.Errorf("audit: marshal: %w", err)
	}
	return data, nil
}

// Sink writes one formatted Outcome per call, one line per record.
type Sink struct {
	mu        sync.Mutex
	w         io.Writer
	formatter Formatter
	logger    *slog.Logger
}

// SinkConfig controls Sink behaviour. Writer defaults to os.Stdout.
type SinkConfig struct {
	Writer    io.Writer
	Formatter Formatter
}

// NewSink constructs a Sink.
func NewSink(cfg SinkConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	formatter := cfg.Formatter
	if formatter == nil {
		formatter = New(Config{}, logger)
	}
	return &Sink{w: w, formatter: formatter, logger: logger}
}

// Record formats and writes one Outcome, followed by a newline.
func (s *Sink) Record(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}

	data, err := s.formatter.Format(&o)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		s.logger.Error("audit: write failed", "error", err.Error())
		return
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		s.logger.Error("audit: newline write failed", "error", err.Error())
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
