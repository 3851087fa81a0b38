package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/depcache"
)

var _ depcache.Logger = LogrusLogger{}

// LogrusLogger adapts a logrus entry. Fields become logrus fields.
type LogrusLogger struct{ E *logrus.Entry }

// New wraps a logger, tagging every line with component=depcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "depcache")}
}

func (l LogrusLogger) Debug(msg string, f depcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f depcache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f depcache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f depcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
