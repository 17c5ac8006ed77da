package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger constructs a zap logger emitting Cloud Logging compatible JSON at the given level.
// Unknown or empty levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevel()
	if err := atomic.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atomic.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey:    "message",
		TimeKey:       "timestamp",
		LevelKey:      "severity",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	cfg := zap.Config{
		Level:             atomic,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// LeveledAdapter exposes a zap logger through the Debugf/Infof/Warnf/Errorf contract
// used by the Stripe client backends.
type LeveledAdapter struct {
	logger *zap.SugaredLogger
}

// NewLeveledAdapter wraps the supplied logger.
func NewLeveledAdapter(logger *zap.Logger) LeveledAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LeveledAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a LeveledAdapter) Debugf(format string, v ...interface{}) { a.logger.Debugf(format, v...) }
func (a LeveledAdapter) Infof(format string, v ...interface{})  { a.logger.Infof(format, v...) }
func (a LeveledAdapter) Warnf(format string, v ...interface{})  { a.logger.Warnf(format, v...) }
func (a LeveledAdapter) Errorf(format string, v ...interface{}) { a.logger.Errorf(format, v...) }
