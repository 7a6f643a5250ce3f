package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the root logger appending to the given file. Components
// derive their own loggers with With().Str("component", ...) and accept
// them through functional options defaulting to zerolog.Nop().
func New(logPath string, debug bool) (zerolog.Logger, error) {
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("open log file: %w", err)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(file).Level(level).With().Timestamp().Logger()
	return logger, nil
}

// NewConsole returns a logger for foreground commands, writing
// human-readable lines to stderr.
func NewConsole(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
