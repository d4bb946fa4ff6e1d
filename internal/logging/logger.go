// Package logging configures the process-wide zerolog logger used by the sync
// engine, the REST client and the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger. Components derive child loggers from it when
// they are constructed, so Init must run before the engine is built.
var Logger zerolog.Logger

// Config selects level, encoding and destination.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Unknown values mean info.
	Level string

	// Format is console (human readable) or json.
	Format string

	// Output defaults to stderr. The inbox points it at logging.file.
	Output io.Writer

	EnableCaller bool
}

// Init replaces the global logger.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	Logger = ctx.Logger()
}

// Disable drops every log line. The inbox uses it when no log file is set,
// since writes to stderr would corrupt the alternate screen.
func Disable() {
	Logger = zerolog.Nop()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs on the global logger.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Component returns a child logger tagged with the engine part that owns it.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithConversation tags logger with a conversation id. The result is a value;
// bind it to a variable before calling level methods on it.
func WithConversation(logger zerolog.Logger, conversationID string) zerolog.Logger {
	return logger.With().Str("conversation_id", conversationID).Logger()
}

func init() {
	Init(Config{Level: "info", Format: "console"})
}
