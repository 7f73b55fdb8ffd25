// Package log wires a subsystem-keyed, leveled logging backend used by
// every package in cminer. Each package takes its logger from NewSubsystem
// at package init; once the CLI has parsed its verbosity flags,
// SetLevelAll sets every subsystem's level and InitLogRotator adds a
// rotating log file next to stdout.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Subsystem tags used across the miner's components.
const (
	NETW = "NETW" // network supervisor
	STAT = "STAT" // shared state / handler
	WORK = "WORK" // worker loop
	MINR = "MINR" // miner driver / main loop
	CFGR = "CFGR" // configuration
)

var backendLog = slog.NewBackend(io.MultiWriter(os.Stdout, logWriter{}))

// Disabled re-exports slog's no-op logger; no package in cminer uses it.
var Disabled = slog.Disabled

var subsystems = make(map[string]slog.Logger)

// logRotator is enabled by InitLogRotator and unset if the process has no
// writable log directory (e.g. running inside a sandbox).
var logRotator *rotator.Rotator

// NewSubsystem returns (creating if needed) the logger for tag.
func NewSubsystem(tag string) slog.Logger {
	if l, ok := subsystems[tag]; ok {
		return l
	}
	l := backendLog.Logger(tag)
	subsystems[tag] = l
	return l
}

// SetLevelAll sets every known subsystem's logging level.
func SetLevelAll(level slog.Level) {
	for _, l := range subsystems {
		l.SetLevel(level)
	}
}

// ParseLevel maps the CLI's -v/-vv/-vvv verbosity counter onto a level,
// matching the original client's "more v's, more noise" convention.
func ParseLevel(verbose uint8) slog.Level {
	switch {
	case verbose == 0:
		return slog.LevelWarn
	case verbose == 1:
		return slog.LevelInfo
	case verbose == 2:
		return slog.LevelDebug
	default:
		return slog.LevelTrace
	}
}

// InitLogRotator initializes a rotating file logger; from then on every
// subsystem logger, including those already handed out, writes to it as
// well as to stdout.
func InitLogRotator(logFile string) error {
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	if logRotator == nil {
		return len(p), nil
	}
	return logRotator.Write(p)
}
