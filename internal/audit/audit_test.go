package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormatter_Format(t *testing.T) {
	f := New(Config{}, nil)
	o := &Outcome{CommandID: "cmd-1", Device: "001", Outlet: "001", Kind: "set", Classification: Success}

	data, err := f.Format(o)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	var decoded Outcome
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.CommandID != "cmd-1" || decoded.Classification != Success {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestJSONFormatter_RejectsNil(t *testing.T) {
	f := New(Config{}, nil)
	if _, err := f.Format(nil); err == nil {
		t.Fatal("expected error for nil outcome")
	}
}

func TestSink_RecordWritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(SinkConfig{Writer: &buf}, nil)

	s.Record(Outcome{CommandID: "cmd-1", Classification: Success})
	s.Record(Outcome{CommandID: "cmd-2", Classification: Timeout})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		var o Outcome
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			t.Errorf("line %q is not valid JSON: %v", line, err)
		}
	}
}
