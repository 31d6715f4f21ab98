// Package logging builds the zerolog loggers used across the matcher. Each
// package asks for a logger tagged with its component name.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// output is where component loggers write. Tests may swap it.
var output io.Writer = os.Stdout

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
}

// New returns a logger tagged with component, e.g. "matcher" or "store".
func New(component string) zerolog.Logger {
	return zerolog.New(output).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// SetLevel sets the global log level from a name such as "debug" or "info".
// An empty name leaves the level at info.
func SetLevel(name string) error {
	if name == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}
