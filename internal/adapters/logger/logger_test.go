package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"backtestCore/internal/ports"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type LoggerTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (suite *LoggerTestSuite) SetupTest() {
	suite.ctx = context.Background()
}

func (suite *LoggerTestSuite) TestStdLoggerSortsFields() {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelInfo, 0)

	l.Info(suite.ctx, "Position closed", map[string]interface{}{"symbol": "ETHUSDT", "pnl": "12.50", "bars": 3})
	suite.Equal("[INFO] Position closed | bars=3 pnl=12.50 symbol=ETHUSDT\n", buf.String())
}

func (suite *LoggerTestSuite) TestStdLoggerFiltersByLevel() {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelWarn, 0)

	l.Debug(suite.ctx, "hidden")
	l.Info(suite.ctx, "hidden")
	suite.Empty(buf.String())

	l.Error(suite.ctx, errors.New("boom"), "Failed to save result")
	suite.Equal("[ERROR] Failed to save result | error: boom\n", buf.String())
}

func (suite *LoggerTestSuite) TestStdLoggerMergesFieldMaps() {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug, 0)

	l.Debug(suite.ctx, "merged", map[string]interface{}{"a": 1, "b": 1}, map[string]interface{}{"b": 2})
	suite.Equal("[DEBUG] merged | a=1 b=2\n", buf.String())
}

func (suite *LoggerTestSuite) TestParseLevel() {
	suite.Equal(LevelDebug, ParseLevel("debug"))
	suite.Equal(LevelWarn, ParseLevel("WARNING"))
	suite.Equal(LevelError, ParseLevel("error"))
	suite.Equal(LevelInfo, ParseLevel("verbose"))
	suite.Equal("WARN", LevelWarn.String())
}

func (suite *LoggerTestSuite) TestZapLoggerWritesFields() {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerFromCore(core)

	l.Info(suite.ctx, "Backtest finished", map[string]interface{}{"trades": 4, "runId": "abc"})
	l.Error(suite.ctx, errors.New("disk full"), "Failed to save result")

	entries := logs.All()
	suite.Require().Len(entries, 2)
	suite.Equal("Backtest finished", entries[0].Message)
	suite.Equal(map[string]interface{}{"trades": int64(4), "runId": "abc"}, entries[0].ContextMap())
	suite.Equal(zapcore.ErrorLevel, entries[1].Level)
	suite.Equal("disk full", entries[1].ContextMap()["error"])
}

func (suite *LoggerTestSuite) TestNewSelectsFormat() {
	text, err := New("text", "info")
	suite.Require().NoError(err)
	suite.IsType(&StdLogger{}, text)

	json, err := New("json", "debug")
	suite.Require().NoError(err)
	suite.IsType(&ZapLogger{}, json)

	_, err = New("xml", "info")
	suite.True(errors.Is(err, ports.ErrConfigurationError))
}
