// Package retry implements the Retrying Request (C4): a bounded-attempt
// wrapper around a device GET/SET with per-attempt timeout and inter-attempt
// delay, grounded on the commands/retries.py CommandRetry.send() retry-loop
// shape.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/vpbank/rs232gw/internal/audit"
	"github.com/vpbank/rs232gw/internal/device"
)

// Kind distinguishes a GET healthcheck from a SET power change.
type Kind string

const (
	KindGet Kind = "get"
	KindSet Kind = "set"
)

// Outcome classifies one attempt (success, protocol_failure, timeout) or the
// end of a run whose every attempt failed (max_attempts_exhausted). Each
// occurrence is logged once.
type Outcome string

const (
	OutcomeSuccess               Outcome = "success"
	OutcomeProtocolFailure       Outcome = "protocol_failure"
	OutcomeTimeout                Outcome = "timeout"
	OutcomeMaxAttemptsExhausted  Outcome = "max_attempts_exhausted"
)

// Request bundles everything a Retrying Request needs to run.
type Request struct {
	CommandID         string
	Kind              Kind
	Device            *device.Device
	Outlet            string
	Verb              string // only meaningful for KindSet
	PerAttemptTimeout time.Duration
	MaxAttempts       int
	InterAttemptDelay time.Duration

	// Audit, when set, receives one audit.Outcome record per attempt outcome
	// and one for max_attempts_exhausted, as a structured record alongside
	// the slog lines. nil means no audit trail is recorded — logging still
	// happens.
	Audit *audit.Sink
}

// Run executes the bounded-retry algorithm and returns true on the first ok
// outcome, false once max_attempts is exhausted. Exactly one log record
// (and one audit record, when Audit is set) is emitted per attempt: success,
// protocol_failure or timeout; a run whose every attempt failed adds one
// terminal max_attempts_exhausted record. The records carry the command
// identity and the classification; the Transport's Detail and any error
// returned by the Device are not included in them.
func (r *Request) Run(ctx context.Context, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discard{}, nil))
	}

	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.PerAttemptTimeout)
		ok, outcome := r.invoke(attemptCtx)
		cancel()

		switch outcome {
		case OutcomeSuccess:
			r.log(logger, OutcomeSuccess, attempt, nil)
			r.record(audit.Success, attempt)
			return true
		case OutcomeTimeout:
			r.log(logger, OutcomeTimeout, attempt, nil)
			r.record(audit.Timeout, attempt)
		default:
			r.log(logger, OutcomeProtocolFailure, attempt, nil)
			r.record(audit.ProtocolFailure, attempt)
		}

		if !ok && attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.InterAttemptDelay):
			}
		}
	}

	r.log(logger, OutcomeMaxAttemptsExhausted, maxAttempts, nil)
	r.record(audit.MaxAttemptsExhausted, maxAttempts)
	return false
}

// record writes one audit.Outcome, if an Audit sink is configured.
func (r *Request) record(classification audit.Classification, attempt int) {
	if r.Audit == nil {
		return
	}
	r.Audit.Record(audit.Outcome{
		CommandID:      r.CommandID,
		Device:         r.Device.Name,
		Outlet:         r.Outlet,
		Verb:           r.Verb,
		Kind:           string(r.Kind),
		Attempt:        attempt,
		Classification: classification,
	})
}

// invoke performs exactly one attempt, classifying a context deadline as a
// timeout (distinct from a protocol-level PDU/engine failure). Cancellation
// is scoped strictly to this attempt via ctx — it never leaks into the next.
func (r *Request) invoke(ctx context.Context) (bool, Outcome) {
	var ok bool
	var err error

	switch r.Kind {
	case KindGet:
		ok, _, err = r.Device.Get(ctx, r.Outlet)
	case KindSet:
		ok, _, err = r.Device.Set(ctx, r.Outlet, r.Verb)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return false, OutcomeTimeout
	}
	if err != nil {
		return false, OutcomeProtocolFailure
	}
	if ok {
		return true, OutcomeSuccess
	}
	return false, OutcomeProtocolFailure
}

func (r *Request) log(logger *slog.Logger, outcome Outcome, attempt int, extra error) {
	attrs := []any{
		"command_id", r.CommandID,
		"device", r.Device.Name,
		"outlet", r.Outlet,
		"kind", r.Kind,
		"attempt", attempt,
		"outcome", outcome,
	}
	if r.Kind == KindSet {
		attrs = append(attrs, "verb", r.Verb)
	}
	if extra != nil {
		attrs = append(attrs, "error", extra.Error())
	}

	switch outcome {
	case OutcomeSuccess:
		logger.Info("retry: request completed", attrs...)
	case OutcomeMaxAttemptsExhausted:
		logger.Error("retry: max attempts exhausted", attrs...)
	default:
		logger.Warn("retry: attempt failed", attrs...)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
