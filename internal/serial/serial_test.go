package serial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vpbank/rs232gw/internal/device"
	"github.com/vpbank/rs232gw/internal/dispatcher"
	"github.com/vpbank/rs232gw/internal/transport"
)

// ─────────────────────────────────────────────────────────────────────────────
// Framing / Read Buffer
// ─────────────────────────────────────────────────────────────────────────────

func TestReadBuffer_TwoCompletedSegments(t *testing.T) {
	var b readBuffer

	input := "on 1 1\rof 2 2\r"
	var got []string
	// Feed in arbitrary chunks to confirm chunking doesn't matter.
	chunks := []string{input[:3], input[3:9], input[9:]}
	for _, c := range chunks {
		got = append(got, b.drain([]byte(c))...)
	}

	want := []string{"on 1 1", "of 2 2"}
	if len(got) != len(want) {
		t.Fatalf("segments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segments = %v, want %v", got, want)
		}
	}
	if len(b.tail()) != 0 {
		t.Errorf("tail = %q, want empty", b.tail())
	}
}

func TestReadBuffer_NoTerminatorRetainsTail(t *testing.T) {
	var b readBuffer
	got := b.drain([]byte("on 1 1"))

	if len(got) != 0 {
		t.Fatalf("segments = %v, want none", got)
	}
	if string(b.tail()) != "on 1 1" {
		t.Errorf("tail = %q, want %q", b.tail(), "on 1 1")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Cycle synthesis
// ─────────────────────────────────────────────────────────────────────────────

type recordingTransport struct {
	mu    sync.Mutex
	calls []recordedSet
}

type recordedSet struct {
	value int
	at    time.Time
}

func (r *recordingTransport) OutletStateGet(ctx context.Context, outlet string) (bool, transport.Detail, error) {
	return true, transport.Detail{}, nil
}

func (r *recordingTransport) OutletStateSet(ctx context.Context, outlet string, value int) (bool, transport.Detail, error) {
	r.mu.Lock()
	r.calls = append(r.calls, recordedSet{value: value, at: time.Now()})
	r.mu.Unlock()
	return true, transport.Detail{}, nil
}

func (r *recordingTransport) Close() error { return nil }

func TestSynthesizeCycle_OffThenDelayThenOn(t *testing.T) {
	rt := &recordingTransport{}
	dev := &device.Device{
		Name:        "002",
		Outlets:     []string{"001"},
		PowerStates: map[string]int{"on": 2, "of": 1}, // no "cy"
		Transport:   rt,
	}

	d := dispatcher.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	cyDelay := 50 * time.Millisecond
	s := New(Config{
		DevicePath: "/dev/null",
		CyDelay:    cyDelay,
		Devices:    map[string]*device.Device{"002": dev},
		Dispatcher: d,
		Retry: RetryConfig{
			PerAttemptTimeout: 100 * time.Millisecond,
			MaxAttempts:       1,
			InterAttemptDelay: time.Millisecond,
		},
		Liveness: noopLiveness{},
	})

	s.handleSegment(ctx, "cy 2 1")

	// Give the synthesis time to finish: cy_delay plus slack for both sets.
	time.Sleep(cyDelay + 200*time.Millisecond)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.calls) != 2 {
		t.Fatalf("calls = %v, want 2 Set calls", rt.calls)
	}
	if rt.calls[0].value != 1 {
		t.Errorf("first call value = %d, want 1 (of)", rt.calls[0].value)
	}
	if rt.calls[1].value != 2 {
		t.Errorf("second call value = %d, want 2 (on)", rt.calls[1].value)
	}
	gap := rt.calls[1].at.Sub(rt.calls[0].at)
	if gap < cyDelay {
		t.Errorf("gap between of/on = %v, want at least %v", gap, cyDelay)
	}
}

type noopLiveness struct{}

func (noopLiveness) Publish(status string) {}
