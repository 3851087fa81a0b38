package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/depcache"
)

var _ depcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New wraps l under the "depcache" logger name.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("depcache")} }

func (z ZapLogger) Debug(msg string, f depcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f depcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f depcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f depcache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f depcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
