package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapOptions configures the zap-backed logger.
type ZapOptions struct {
	Level    string // debug, info, warn, error
	Encoding string // json or console
}

// BuildZap constructs a production zap logger with the requested level and
// encoding.
func BuildZap(opts ZapOptions) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Encoding != "" {
		cfg.Encoding = opts.Encoding
	}
	if cfg.Encoding == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// NewZap adapts a zap logger to the Logger interface.
func NewZap(l *zap.Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return zapLogger{l: l}
}

type zapLogger struct{ l *zap.Logger }

func (z zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, zapFields(fields)...) }
func (z zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, zapFields(fields)...) }
func (z zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, zapFields(fields)...) }
func (z zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, zapFields(fields)...) }

func (z zapLogger) With(fields ...Field) Logger {
	return zapLogger{l: z.l.With(zapFields(fields)...)}
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}
		switch v := f.Value().(type) {
		case string:
			out = append(out, zap.String(f.Key(), v))
		case int:
			out = append(out, zap.Int(f.Key(), v))
		case int64:
			out = append(out, zap.Int64(f.Key(), v))
		case float64:
			out = append(out, zap.Float64(f.Key(), v))
		case bool:
			out = append(out, zap.Bool(f.Key(), v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key(), v))
		case error:
			out = append(out, zap.NamedError(f.Key(), v))
		default:
			out = append(out, zap.Any(f.Key(), v))
		}
	}
	return out
}

type logSpan struct {
	log   Logger
	name  string
	start time.Time
	tags  []Field
	err   error
}

// LogTracer returns a Tracer that reports each finished span as a debug log
// line with its duration and tags.
func LogTracer(l Logger) Tracer { return logTracer{log: OrNop(l)} }

type logTracer struct{ log Logger }

func (t logTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &logSpan{log: t.log, name: name, start: time.Now()}
}

func (s *logSpan) SetTag(key string, value interface{}) {
	s.tags = append(s.tags, Any(key, value))
}

func (s *logSpan) SetError(err error) { s.err = err }

func (s *logSpan) Finish() {
	fields := append([]Field{String("span", s.name), Duration("elapsed", time.Since(s.start))}, s.tags...)
	if s.err != nil {
		fields = append(fields, Err(s.err))
		s.log.Warn("span finished with error", fields...)
		return
	}
	s.log.Debug("span finished", fields...)
}
