package services

import (
	"errors"
	"testing"
)

func TestWrapPreservesMarker(t *testing.T) {
	cause := errors.New("socket closed")
	err := Wrap(ErrExternalTool, "converter", "batch 3", "process exited", cause)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatal("marker lost")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
}

func TestTerminalClassification(t *testing.T) {
	cases := []struct {
		err      error
		terminal bool
	}{
		{Wrap(ErrValidation, "pipeline", "", "no valid records", nil), true},
		{Wrap(ErrNotFound, "templates", "fetch", "missing", nil), true},
		{Wrap(ErrConflict, "session", "", "run already in progress", nil), true},
		{Wrap(ErrExternalTool, "converter", "", "batch failed", nil), false},
		{Wrap(ErrTimeout, "converter", "", "batch timeout", nil), false},
	}
	for _, tc := range cases {
		if got := Terminal(tc.err); got != tc.terminal {
			t.Errorf("Terminal(%v) = %v, want %v", tc.err, got, tc.terminal)
		}
	}
}
