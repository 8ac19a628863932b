package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var logger = newLogger(os.Stdout, "")

// traceHook stamps every event logged with a context carrying a recording or
// remote span with that span's ids.
type traceHook struct{}

func (traceHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	sc := trace.SpanContextFromContext(e.GetCtx())
	if !sc.IsValid() {
		return
	}
	e.Str("traceId", sc.TraceID().String()).
		Str("spanId", sc.SpanID().String())
}

func newLogger(w io.Writer, service string) zerolog.Logger {
	ctx := zerolog.New(w).Hook(traceHook{}).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}

// Init replaces the package logger. Development gets a console writer with
// caller info; everything else writes JSON lines to stderr.
func Init(isDevelopment bool, service string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if isDevelopment {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = newLogger(console, service).With().Caller().Logger()
		return
	}

	logger = newLogger(os.Stderr, service)
}

// SetOutput redirects the package logger, mostly for tests.
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

func Logger() *zerolog.Logger {
	return &logger
}

// WithContext returns the package logger bound to ctx, so events it emits
// carry the active span ids.
func WithContext(ctx context.Context) zerolog.Logger {
	return logger.With().Ctx(ctx).Logger()
}

func Info(ctx context.Context) *zerolog.Event {
	return logger.Info().Ctx(ctx)
}

func Error(ctx context.Context) *zerolog.Event {
	return logger.Error().Ctx(ctx)
}

func Debug(ctx context.Context) *zerolog.Event {
	return logger.Debug().Ctx(ctx)
}

func Warn(ctx context.Context) *zerolog.Event {
	return logger.Warn().Ctx(ctx)
}
