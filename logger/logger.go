// Package logger holds the process-wide zap logger and the field names
// used across quotesearch.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is a no-op until one of the Initialize functions runs
	Logger = zap.NewNop().Sugar()
	// JSONOutput is true once a JSON encoder is installed
	JSONOutput bool
)

// Initialize installs the CLI logger at Info level
func Initialize(jsonOutput bool) error {
	return InitializeWithLevel(jsonOutput, zapcore.InfoLevel)
}

// InitializeWithLevel installs the CLI logger. Console output goes to
// stderr so --json command output on stdout stays parseable.
func InitializeWithLevel(jsonOutput bool, level zapcore.Level) error {
	JSONOutput = jsonOutput
	if !jsonOutput {
		install(consoleEncoder(), os.Stderr, level)
		return nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	built, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = built.Sugar()
	return nil
}

// InitializeWorker installs JSON logging on w. Worker stdout carries the
// job protocol, so w is normally stderr, which the supervisor forwards.
func InitializeWorker(w io.Writer, level zapcore.Level) {
	JSONOutput = true
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	install(zapcore.NewJSONEncoder(enc), w, level)
}

func install(enc zapcore.Encoder, w io.Writer, level zapcore.Level) {
	Logger = zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)).Sugar()
}

// consoleEncoder prints "15:04:05 INFO msg key=value" without caller or stack
func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

// Cleanup flushes buffered entries; call it before exit
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Helpers for code without a component logger. They are
// safe to call when Logger is nil.

func Infow(msg string, kv ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, kv...)
	}
}

func Warnw(msg string, kv ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, kv...)
	}
}

func Errorw(msg string, kv ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, kv...)
	}
}

func Debugw(msg string, kv ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, kv...)
	}
}
