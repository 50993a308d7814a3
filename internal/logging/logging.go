// Package logging provides the zerolog-based structured logger used by every
// core engine package. It replaces stdlib log.Printf calls with a global
// logger plus scan/session-scoped children carrying correlation fields.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger's output.
type Config struct {
	// Level is trace, debug, info, warn, error, fatal, panic. Default info.
	Level string
	// Format is json or console. Default json.
	Format string
	Caller bool
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

func init() {
	initLogger(DefaultConfig())
}

// Init (re)configures the global logger. Call once at process startup.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(output).With().Timestamp()
	if cfg.Caller {
		l = l.Caller()
	}
	log = l.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// ──────────────────── scoped child loggers ────────────────────

type contextKey string

const loggerKey contextKey = "logging.logger"

// ForScan returns a child logger tagged with the scan's id and library.
func ForScan(scanID, libraryID string) zerolog.Logger {
	return Logger().With().Str("scan_id", scanID).Str("library_id", libraryID).Logger()
}

// ForSession returns a child logger tagged with a playback session id.
func ForSession(sessionID string) zerolog.Logger {
	return Logger().With().Str("session_id", sessionID).Logger()
}

// ForStage returns a child logger tagged with a pipeline stage name, nested
// under an existing scoped logger.
func ForStage(base zerolog.Logger, stage string) zerolog.Logger {
	return base.With().Str("stage", stage).Logger()
}

// WithLogger stashes a logger in the context for handlers that don't thread
// one explicitly.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves a scoped logger stashed by WithLogger, falling back
// to the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return Logger()
}
