package logger

// Fields carries structured log context.
type Fields map[string]any

type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, Fields) {}
func (NoopLogger) Info(string, Fields)  {}
func (NoopLogger) Warn(string, Fields)  {}
func (NoopLogger) Error(string, Fields) {}
