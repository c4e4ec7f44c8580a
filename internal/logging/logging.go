// Package logging sets up the process-wide structured logger used
// throughout harvester, mirroring beeper-ai-bridge's zerolog conventions.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w. When pretty is true (an
// interactive TTY), output goes through zerolog's console writer;
// otherwise it is newline-delimited JSON suitable for log aggregation.
func New(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Default builds a logger writing to stderr, pretty-printed when stderr is
// a terminal.
func Default() zerolog.Logger {
	return New(os.Stderr, isTerminal(os.Stderr))
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
