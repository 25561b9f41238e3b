// Package logger builds the zerolog loggers used across the hub.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	Level      string `json:"level"`
	Debug      bool   `json:"debug"`
	Output     string `json:"output"`
	Format     string `json:"format"`
	TimeFormat string `json:"time_format"`
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: "stdout",
		Format: FormatJSON,
	}
}

// New returns a logger writing to the configured output.
func New(config Config) (zerolog.Logger, error) {
	var output io.Writer = os.Stdout
	switch config.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		return zerolog.Nop(), fmt.Errorf("logger: unknown output %q", config.Output)
	}
	return NewWithWriter(config, output)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(config Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(config.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: %w", err)
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	switch config.Format {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !isTerminal(w)}
	default:
		return zerolog.Nop(), fmt.Errorf("logger: unknown format %q", config.Format)
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

// WithComponent derives a child logger tagged with the component name.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
