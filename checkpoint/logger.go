package checkpoint

import (
	"strings"

	"go.uber.org/zap"
)

// badgerLogger sends badger logs to zap. Badger terminates its lines with
// a newline, zap does not need it.
type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Errorf(strings.TrimSuffix(format, "\n"), args...)
}
func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warnf(strings.TrimSuffix(format, "\n"), args...)
}
func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debugf(strings.TrimSuffix(format, "\n"), args...)
}
func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debugf(strings.TrimSuffix(format, "\n"), args...)
}
