package parser

import (
	"testing"
)

func TestParse_Accepted(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"on 1 1", Command{Verb: VerbOn, DeviceID: 1, OutletID: 1}},
		{"of 1 1", Command{Verb: VerbOf, DeviceID: 1, OutletID: 1}},
		{"cy 1 1", Command{Verb: VerbCy, DeviceID: 1, OutletID: 1}},
		{"quit", Command{Verb: VerbQuit}},
		{"", Command{Verb: VerbEmpty}},
		{"on 256 1", Command{Verb: VerbOn, DeviceID: 256, OutletID: 1}},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParse_Rejected(t *testing.T) {
	cases := []string{
		"on 257 1",
		"shutdown 1 1",
		"on11",
		"on -1 1",
		"on 1 -1",
		"on 1 1 ",
		"on 1 1 2",
	}

	for _, in := range cases {
		_, err := Parse(in)
		if err == nil {
			t.Errorf("Parse(%q) expected ParseError, got nil", in)
			continue
		}
		if _, ok := err.(*ParseError); !ok {
			t.Errorf("Parse(%q) error = %T, want *ParseError", in, err)
		}
	}
}

func TestParse_NoTerminatorIsCallerResponsibility(t *testing.T) {
	// Parse itself has no notion of a terminator — the caller (the Serial
	// Supervisor) only calls Parse once a \r has already been seen and
	// stripped. A segment that is complete on grammar terms therefore parses
	// successfully even though no terminator is present in the string.
	_, err := Parse("on 1 1")
	if err != nil {
		t.Fatalf("Parse(%q): %v", "on 1 1", err)
	}
}
