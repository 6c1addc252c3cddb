package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vpbank/rs232gw/internal/serial"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
serial:
  device: /dev/fake0
  timeout: 1
snmp.retry:
  max_attempts: 2
  delay: 1
  timeout: 1
healthcheck:
  frequency: 1
power_states:
  cy_delay: 1
devices:
  pdu1:
    outlets:
      "001": 1.3.6.1.4.1.9999.1.1.1
    power_states:
      on: 1
      of: 2
    snmp:
      ip_address: 127.0.0.1
      port: 16100
      v2:
        read_community: public
        write_community: private
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// fakePort is a no-op serial.Port: Read always times out, satisfying the
// Supervisor's read loop without a real tty.
type fakePort struct{}

func (fakePort) Read(p []byte) (int, error)  { return 0, fakeTimeoutErr{} }
func (fakePort) Write(p []byte) (int, error) { return len(p), nil }
func (fakePort) Close() error                { return nil }

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake: timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func fakeOpen(path string, readTimeout time.Duration) (serial.Port, error) {
	return fakePort{}, nil
}

func TestStartStop_WiresComponentsWithoutRealTTY(t *testing.T) {
	path := writeTestConfig(t)

	a := New(Config{
		ConfigPath: path,
		Open:       fakeOpen,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(a.devices) != 1 {
		t.Errorf("devices = %d, want 1", len(a.devices))
	}
	if !a.supervisor.IsUp() {
		t.Error("supervisor should be up after Start with a working fake Open")
	}

	time.Sleep(20 * time.Millisecond)
	a.Stop()
}

func TestReload_RebuildsDevicesWithoutSwappingRunningState(t *testing.T) {
	path := writeTestConfig(t)
	a := New(Config{ConfigPath: path, Open: fakeOpen})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if a.loaded == nil || len(a.loaded.Devices) != 1 {
		t.Errorf("loaded devices after reload = %v", a.loaded)
	}
}

func TestSubmitManualToggle_UnknownDeviceErrors(t *testing.T) {
	path := writeTestConfig(t)
	a := New(Config{ConfigPath: path, Open: fakeOpen})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if err := a.SubmitManualToggle(ctx, "nonexistent", "001"); err == nil {
		t.Error("expected error for unknown device, got nil")
	}
}
