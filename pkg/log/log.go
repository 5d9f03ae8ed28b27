// Package log provides structured logging for the SDK using zerolog.
//
// Every subsystem (transport, relay, pool, gossip, negentropy) pulls a
// child logger tagged with its component name rather than writing directly
// to stdout, so a host application can filter or redirect by component.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-global logger instance. Init overwrites it; until
// Init is called it writes human-readable output to stderr at info level.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

// Level mirrors zerolog's levels without forcing callers to import zerolog.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init (re)configures the global logger. Safe to call once at process
// startup; host applications that want no SDK logging at all can pass
// Output: io.Discard.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with the given subsystem name,
// e.g. log.Component("relay").Debug().Str("url", u).Msg("connecting").
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithRelay returns a child logger tagged with both component and relay URL.
func WithRelay(component, url string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("relay", url).Logger()
}
