package logger

import "go.uber.org/zap"

// Lifecycle symbols, logged as a structured field rather than in the message.
const (
	SymPulse = "꩜" // background job activity
	SymOpen  = "✿" // graceful start
	SymClose = "❀" // graceful stop
)

// PulseLogger wraps a component logger with lifecycle helpers used by the
// job manager and its workers.
type PulseLogger struct {
	*zap.SugaredLogger
}

// NewPulseLogger returns a PulseLogger named after the component
func NewPulseLogger(name string) PulseLogger {
	return PulseLogger{ComponentLogger(name)}
}

// Starting logs startup at debug level with the open symbol
func (l PulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, append([]interface{}{FieldSymbol, SymOpen}, keysAndValues...)...)
}

// Closing logs shutdown at warn level with the close symbol
func (l PulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, append([]interface{}{FieldSymbol, SymClose}, keysAndValues...)...)
}

// Pulse logs routine job activity at info level
func (l PulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, append([]interface{}{FieldSymbol, SymPulse}, keysAndValues...)...)
}
