// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Options holds logging configuration.
type Options struct {
	Level  string
	Pretty bool

	// Out defaults to os.Stderr.
	Out io.Writer
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// New builds a logger from opts. Output is human-readable when Pretty is set
// or when Out is a terminal, and JSON otherwise.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty || isTerminal(out) {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(out),
		}
	}
	return zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Str("service", "resolvr").Logger()
}

// Setup builds a logger from opts, installs it as the global logger and sets
// the global level.
func Setup(opts Options) zerolog.Logger {
	logger := New(opts)
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	log.Logger = logger
	return logger
}

// SetLevel changes the global level, e.g. after a config reload.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
