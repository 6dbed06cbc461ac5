package sink

import "log/slog"

// Log writes every value as a log record. It is used when no broker is
// configured, for dry runs against a replayed capture.
type Log struct {
	Logger *slog.Logger
}

// Publish logs the value at info level.
func (l Log) Publish(path string, value Value) error {
	l.Logger.Info("value", "path", path, "value", value.String())
	return nil
}

// Close does nothing.
func (l Log) Close() error { return nil }
