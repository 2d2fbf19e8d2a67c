// Package logging builds the zerolog logger handed to every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Config selects level, format ("json", "console" or "auto") and output
// ("stdout", "stderr" or a file path). "auto" means console on a terminal.
type Config struct {
	Level  string
	Format string
	Output string
}

// New creates a logger. Unknown levels fall back to info and an unopenable
// output file falls back to stdout.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer
	switch cfg.Output {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			writer = os.Stdout
		} else {
			writer = f
		}
	}
	if cfg.Format == "auto" {
		cfg.Format = "json"
		if f, ok := writer.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			cfg.Format = "console"
		}
	}
	return NewWithWriter(cfg, writer)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: true}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
