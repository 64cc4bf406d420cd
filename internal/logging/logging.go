// Package logging builds the process-wide zerolog logger. Output always
// goes to stderr: stdout carries the MCP protocol and must stay clean.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a logger at the given level. Format "console" produces
// human-readable output; anything else emits JSON lines. Components derive
// sub-loggers via log.With().Str("component", ...).
func New(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var output io.Writer = os.Stderr
	if strings.EqualFold(format, "console") {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Logger().
		Level(lvl)

	return logger, nil
}

// Nop returns a disabled logger for tests and tools that want silence.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
