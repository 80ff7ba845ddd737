// Package logging sets up the zap.Logger used throughout the server.
package logging

import (
	"context"
	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"os"
)

// Config for NewLogger.
type Config struct {
	// StdoutLogLevel is the minimum level for logging to stdout.
	StdoutLogLevel zapcore.Level
	// HighPriorityOutput is the optional file for warnings and errors.
	HighPriorityOutput nulls.String
	// DebugOutput is the optional file for all log entries.
	DebugOutput nulls.String
	// MaxSize is the maximum size in megabytes of log files before they get
	// rotated.
	MaxSize int
	// KeepDays is the number of days to keep rotated log files.
	KeepDays int
	// PublishLogLevel is the minimum level for entries that are handed out for
	// publishing.
	PublishLogLevel zapcore.Level
}

// outputs are the sinks used for the console cores.
type outputs struct {
	stdout io.Writer
	stderr io.Writer
}

// NewLogger creates the zap.Logger as described in the given Config. Entries
// that may be published are forwarded to the returned channel until the given
// context.Context is done.
func NewLogger(ctx context.Context, config Config) (*zap.Logger, <-chan LogEntry) {
	return newLogger(ctx, config, outputs{stdout: os.Stdout, stderr: os.Stderr})
}

func newLogger(ctx context.Context, config Config, out outputs) (*zap.Logger, <-chan LogEntry) {
	fileEncoder := zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalLevelEncoder))
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalColorLevelEncoder)),
			zapcore.Lock(zapcore.AddSync(out.stdout)), atLeast(config.StdoutLogLevel)),
		zapcore.NewCore(fileEncoder, zapcore.Lock(zapcore.AddSync(out.stderr)), atLeast(zap.ErrorLevel)),
	}
	rotated := func(filename string, minLevel zapcore.Level) zapcore.Core {
		return zapcore.NewCore(fileEncoder, zapcore.AddSync(&lumberjack.Logger{
			Filename: filename,
			MaxSize:  config.MaxSize,
			MaxAge:   config.KeepDays,
		}), atLeast(minLevel))
	}
	if config.HighPriorityOutput.Valid {
		cores = append(cores, rotated(config.HighPriorityOutput.String, zap.WarnLevel))
	}
	if config.DebugOutput.Valid {
		cores = append(cores, rotated(config.DebugOutput.String, zap.DebugLevel))
	}
	publishCore, published := NewNoPublishOmitCore(ctx, config.PublishLogLevel)
	cores = append(cores, publishCore)
	return zap.New(zapcore.NewTee(cores...)), published
}

func atLeast(minLevel zapcore.Level) zap.LevelEnablerFunc {
	return func(level zapcore.Level) bool {
		return level >= minLevel
	}
}

func encoderConfig(encodeLevel zapcore.LevelEncoder) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
