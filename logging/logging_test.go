package logging

import (
	"bytes"
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// NewLoggerSuite tests newLogger.
type NewLoggerSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func (suite *NewLoggerSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), 3*time.Second)
	suite.stdout = &bytes.Buffer{}
	suite.stderr = &bytes.Buffer{}
}

func (suite *NewLoggerSuite) TearDownTest() {
	suite.cancel()
}

func (suite *NewLoggerSuite) newLogger(config Config) (*zap.Logger, <-chan LogEntry) {
	return newLogger(suite.ctx, config, outputs{stdout: suite.stdout, stderr: suite.stderr})
}

func (suite *NewLoggerSuite) TestStdoutLevel() {
	logger, _ := suite.newLogger(Config{StdoutLogLevel: zap.InfoLevel, PublishLogLevel: zap.InfoLevel})
	logger.Debug("meow-debug")
	logger.Info("meow-info")
	suite.NotContains(suite.stdout.String(), "meow-debug", "should omit debug")
	suite.Contains(suite.stdout.String(), "meow-info", "should log info")
	suite.Empty(suite.stderr.String(), "should not log info to stderr")
}

func (suite *NewLoggerSuite) TestErrorsToStderr() {
	logger, _ := suite.newLogger(Config{StdoutLogLevel: zap.InfoLevel, PublishLogLevel: zap.InfoLevel})
	logger.Error("meow-error")
	suite.Contains(suite.stderr.String(), "meow-error", "should log error to stderr")
	suite.Contains(suite.stdout.String(), "meow-error", "should log error to stdout")
}

func (suite *NewLoggerSuite) TestFileOutputs() {
	dir := suite.T().TempDir()
	highPriorityFile := filepath.Join(dir, "high-priority.log")
	debugFile := filepath.Join(dir, "debug.log")
	logger, _ := suite.newLogger(Config{
		StdoutLogLevel:     zap.InfoLevel,
		HighPriorityOutput: nulls.NewString(highPriorityFile),
		DebugOutput:        nulls.NewString(debugFile),
		MaxSize:            1,
		KeepDays:           1,
		PublishLogLevel:    zap.InfoLevel,
	})
	logger.Debug("meow-debug")
	logger.Warn("meow-warn")
	suite.Require().NoError(logger.Sync())

	highPriority, err := os.ReadFile(highPriorityFile)
	suite.Require().NoError(err, "high priority file should exist")
	suite.Contains(string(highPriority), "meow-warn", "should log warn to high priority file")
	suite.NotContains(string(highPriority), "meow-debug", "should omit debug in high priority file")
	debug, err := os.ReadFile(debugFile)
	suite.Require().NoError(err, "debug file should exist")
	suite.Contains(string(debug), "meow-debug", "should log debug to debug file")
	suite.Contains(string(debug), "meow-warn", "should log warn to debug file")
}

func (suite *NewLoggerSuite) TestPublish() {
	logger, publish := suite.newLogger(Config{StdoutLogLevel: zap.InfoLevel, PublishLogLevel: zap.InfoLevel})
	logger.Named("arena").With(zap.String("match_id", "m1")).Info("meow", zap.Int("round", 2))
	select {
	case <-suite.ctx.Done():
		suite.Fail("timeout", "timeout while waiting for entry")
	case entry := <-publish:
		suite.Equal("meow", entry.Message, "should forward message")
		suite.Equal(zap.InfoLevel, entry.Level, "should forward level")
		suite.Equal("arena", entry.LoggerName, "should forward logger name")
		suite.Equal(map[string]interface{}{"match_id": "m1", "round": int64(2)}, entry.Fields, "should forward fields")
	}
}

func TestNewLogger(t *testing.T) {
	suite.Run(t, new(NewLoggerSuite))
}

func TestNoPublishOmitCore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, publish := NewNoPublishOmitCore(ctx, zap.InfoLevel)
	logger := zap.New(core)

	logger.Debug("too low")
	NoPublish(logger).Info("omitted via logger")
	logger.Info("omitted via field", zap.Bool(noPublishKey, true))
	logger.Info("published")

	require.Len(t, publish, 1, "should forward only one entry")
	entry := <-publish
	assert.Equal(t, "published", entry.Message, "should forward correct entry")
}

func TestNoPublishOmitCoreDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core, publish := NewNoPublishOmitCore(ctx, zap.InfoLevel)
	logger := zap.New(core)
	for i := 0; i < publishBufferSize+10; i++ {
		logger.Info("meow")
	}
	assert.Len(t, publish, publishBufferSize, "should drop entries when full")
}

func TestNoPublishOmitCoreStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	core, publish := NewNoPublishOmitCore(ctx, zapcore.DebugLevel)
	logger := zap.New(core)
	cancel()
	logger.Info("meow")
	assert.Len(t, publish, 0, "should not forward after context done")
}
