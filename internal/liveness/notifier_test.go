package liveness

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWriterNotifier_PublishWritesStatusLine(t *testing.T) {
	var buf bytes.Buffer
	n := New(Config{Writer: &buf, TimeFn: func() time.Time { return time.Unix(0, 0) }}, nil)

	n.Publish("Serial port successfully opened")

	got := buf.String()
	if !strings.Contains(got, `status="Serial port successfully opened"`) {
		t.Errorf("output = %q, want it to contain the status string", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("output = %q, want trailing newline", got)
	}
}

func TestWriterNotifier_KeepaliveWritesHeartbeat(t *testing.T) {
	var buf bytes.Buffer
	n := New(Config{Writer: &buf}, nil)

	n.Keepalive()

	if !strings.Contains(buf.String(), "keepalive") {
		t.Errorf("output = %q, want it to mention keepalive", buf.String())
	}
}
