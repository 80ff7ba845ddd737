package logging

import (
	"context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// noPublishKey is the field key that marks entries as not to be published.
const noPublishKey = "no_publish"

// publishBufferSize is the number of entries that are buffered for publishing.
// Further entries are dropped until there is space again.
const publishBufferSize = 256

// LogEntry is a log entry that is handed out for publishing.
type LogEntry struct {
	Time       time.Time
	Message    string
	Level      zapcore.Level
	LoggerName string
	Fields     map[string]interface{}
}

// NoPublish marks all entries of the returned zap.Logger as not to be
// published. This is required for loggers used while publishing in order to
// avoid feedback loops.
func NoPublish(logger *zap.Logger) *zap.Logger {
	return logger.With(zap.Bool(noPublishKey, true))
}

// noPublishOmitCore is a zapcore.Core that forwards entries to a channel unless
// they are marked with NoPublish.
type noPublishOmitCore struct {
	zapcore.LevelEnabler
	ctx context.Context
	// fields are the fields added via With.
	fields []zapcore.Field
	// omit is set when the core was created with a NoPublish field.
	omit bool
	out  chan<- LogEntry
}

// NewNoPublishOmitCore creates a zapcore.Core that forwards all entries with at
// least the given level to the returned channel until the context.Context is
// done. The channel is never closed as loggers may still be used afterwards.
// Entries that are logged while the buffer is full are dropped.
func NewNoPublishOmitCore(ctx context.Context, level zapcore.LevelEnabler) (zapcore.Core, <-chan LogEntry) {
	out := make(chan LogEntry, publishBufferSize)
	core := &noPublishOmitCore{
		LevelEnabler: level,
		ctx:          ctx,
		out:          out,
	}
	return core, out
}

func hasNoPublishField(fields []zapcore.Field) bool {
	for _, field := range fields {
		if field.Key == noPublishKey && field.Type == zapcore.BoolType && field.Integer == 1 {
			return true
		}
	}
	return false
}

func (c *noPublishOmitCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	clone.omit = c.omit || hasNoPublishField(fields)
	return &clone
}

func (c *noPublishOmitCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.omit || !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *noPublishOmitCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if hasNoPublishField(fields) || c.ctx.Err() != nil {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}
	select {
	case c.out <- LogEntry{
		Time:       entry.Time,
		Message:    entry.Message,
		Level:      entry.Level,
		LoggerName: entry.LoggerName,
		Fields:     enc.Fields,
	}:
	default:
	}
	return nil
}

func (c *noPublishOmitCore) Sync() error {
	return nil
}
