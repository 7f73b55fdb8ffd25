package log

import (
	"testing"

	"github.com/decred/slog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		verbose uint8
		want    slog.Level
	}{
		{0, slog.LevelWarn},
		{1, slog.LevelInfo},
		{2, slog.LevelDebug},
		{3, slog.LevelTrace},
		{255, slog.LevelTrace},
	}
	for _, c := range cases {
		if got := ParseLevel(c.verbose); got != c.want {
			t.Fatalf("ParseLevel(%d) = %v, want %v", c.verbose, got, c.want)
		}
	}
}

func TestNewSubsystemReturnsSameLoggerForSameTag(t *testing.T) {
	a := NewSubsystem("TEST_TAG_A")
	b := NewSubsystem("TEST_TAG_A")
	a.SetLevel(slog.LevelDebug)
	if b.Level() != slog.LevelDebug {
		t.Fatalf("NewSubsystem returned a distinct logger instance for the same tag")
	}
}

func TestSetLevelAllAppliesToEveryKnownSubsystem(t *testing.T) {
	x := NewSubsystem("TEST_TAG_X")
	y := NewSubsystem("TEST_TAG_Y")
	SetLevelAll(slog.LevelTrace)
	if x.Level() != slog.LevelTrace || y.Level() != slog.LevelTrace {
		t.Fatalf("SetLevelAll did not reach every subsystem")
	}
}
