package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config describes how a logger is built. The zero value logs JSON at info
// level to stderr.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output io.Writer

	// SentryDSN enables error reporting. Warnings are attached as logs,
	// errors become Sentry issues.
	SentryDSN         string
	SentryEnvironment string
}

// New builds a logger from cfg. Extractors run on every record, so values
// placed in the context by middleware (request ID, visitor) end up in
// every line logged with that context.
//
// The returned flush waits for buffered Sentry events and should be called
// before the process exits.
func New(cfg Config, extractors ...Extractor) (*slog.Logger, func(time.Duration)) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(cfg.Format, FormatText) {
		base = slog.NewTextHandler(out, hopts)
	} else {
		base = slog.NewJSONHandler(out, hopts)
	}

	noflush := func(time.Duration) {}

	if cfg.SentryDSN == "" {
		return slog.New(withExtractors(base, extractors)), noflush
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		EnableLogs:  true,
	}); err != nil {
		log := slog.New(withExtractors(base, extractors))
		log.Error("sentry init failed, logging locally only", slog.Any("error", err))
		return log, noflush
	}

	report := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	flush := func(d time.Duration) { sentry.Flush(d) }
	return slog.New(withExtractors(fanout{base, report}, extractors)), flush
}

// ParseLevel maps a level name to a slog level. An empty name means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
