package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with lattice-specific field helpers.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
}

type loggerContextKey struct{}

// NewLogger builds a Logger from the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: timeFormat(cfg.TimeFormat),
			NoColor:    false,
		}
	}

	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "unixms":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	case "unixmicro":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	zlog := zerolog.New(writer).With().Timestamp().Logger()
	zlog = zlog.Level(parseLevel(cfg.Level))
	if cfg.EnableCaller {
		zlog = zlog.With().Caller().Logger()
	}
	if cfg.EnableSampling {
		sampler := &zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		}
		zlog = zlog.Sample(sampler)
	}

	return &Logger{zlog: zlog, config: cfg}, nil
}

// NewComponentLogger returns a child logger tagged with a component name.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", component).Logger(), config: l.config}
}

// WithContext stores the logger on ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves a Logger previously stored with WithContext, or a
// minimal stdout default if none is present.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.New(os.Stdout).With().Timestamp().Logger()}
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger(), config: l.config}
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger(), config: l.config}
}

// WithTransactionID adds a transaction_id field.
func (l *Logger) WithTransactionID(id string) *Logger { return l.WithField("transaction_id", id) }

// WithResource adds a resource_ref field.
func (l *Logger) WithResource(ref string) *Logger { return l.WithField("resource_ref", ref) }

func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger(), config: l.config}
}

func (l *Logger) Trace(msg string)   { l.zlog.Trace().Msg(msg) }
func (l *Logger) Debug(msg string)   { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)    { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)    { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string)   { l.zlog.Error().Msg(msg) }

// Notice has no zerolog equivalent; it is logged at info level tagged with
// a notice field so it can still be filtered separately downstream.
func (l *Logger) Notice(msg string) { l.zlog.Info().Bool("notice", true).Msg(msg) }

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func timeFormat(format string) string {
	if format == "unix" {
		return "unix"
	}
	return time.RFC3339
}

// ResourceLogger adapts a Logger into the resource.Logger hook set
// (debug/info/notice/warning/err) the engine requires from every resource,
// tagging every line with that resource's ref.
type ResourceLogger struct {
	log *Logger
}

// NewResourceLogger returns a ResourceLogger tagged with ref.
func NewResourceLogger(base *Logger, ref string) *ResourceLogger {
	return &ResourceLogger{log: base.WithResource(ref)}
}

func (r *ResourceLogger) Debug(msg string)   { r.log.Debug(msg) }
func (r *ResourceLogger) Info(msg string)    { r.log.Info(msg) }
func (r *ResourceLogger) Notice(msg string)  { r.log.Notice(msg) }
func (r *ResourceLogger) Warning(msg string) { r.log.Warn(msg) }
func (r *ResourceLogger) Err(msg string)     { r.log.Error(msg) }
