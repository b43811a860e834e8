// Package logger configures the process-wide structured logger and
// provides helpers for masking respondent PII before it reaches log
// output.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a JSON logger writing to w at the named level. Unknown
// level names fall back to info.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Default returns a logger writing to stderr.
func Default(level string) zerolog.Logger {
	return New(os.Stderr, level)
}
