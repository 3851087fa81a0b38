package depcache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is the leveled logger the cache reports through. Adapters for
// logrus, zap and log/slog live under log/. A nil Options.Logger disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
