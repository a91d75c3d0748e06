package logging

import (
	"github.com/sirupsen/logrus"
)

// DefaultLog provides a default implementation of the Logger interface.
type DefaultLog struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// Logger instances provide custom logging. The router, proxy engine,
// management API and error handler all take a Logger rather than
// calling logrus directly, so that tests can substitute
// loggingtest.TestLogger.
type Logger interface {

	// Log with level ERROR
	Error(...interface{})

	// Log formatted messages with level ERROR
	Errorf(string, ...interface{})

	// Log with level WARN
	Warn(...interface{})

	// Log formatted messages with level WARN
	Warnf(string, ...interface{})

	// Log with level INFO
	Info(...interface{})

	// Log formatted messages with level INFO
	Infof(string, ...interface{})

	// Log with level DEBUG
	Debug(...interface{})

	// Log formatted messages with level DEBUG
	Debugf(string, ...interface{})

	WithFields(map[string]interface{}) Logger
}

func (dl *DefaultLog) Error(a ...interface{}) { dl.logger.WithFields(dl.fields).Error(a...) }
func (dl *DefaultLog) Errorf(f string, a ...interface{}) {
	dl.logger.WithFields(dl.fields).Errorf(f, a...)
}
func (dl *DefaultLog) Warn(a ...interface{}) { dl.logger.WithFields(dl.fields).Warn(a...) }
func (dl *DefaultLog) Warnf(f string, a ...interface{}) {
	dl.logger.WithFields(dl.fields).Warnf(f, a...)
}
func (dl *DefaultLog) Info(a ...interface{}) { dl.logger.WithFields(dl.fields).Info(a...) }
func (dl *DefaultLog) Infof(f string, a ...interface{}) {
	dl.logger.WithFields(dl.fields).Infof(f, a...)
}
func (dl *DefaultLog) Debug(a ...interface{}) { dl.logger.WithFields(dl.fields).Debug(a...) }
func (dl *DefaultLog) Debugf(f string, a ...interface{}) {
	dl.logger.WithFields(dl.fields).Debugf(f, a...)
}

// WithFields returns a new Logger that always includes the given
// fields, e.g. route prefix and target, in subsequent entries.
func (dl *DefaultLog) WithFields(fields map[string]interface{}) Logger {
	merged := make(logrus.Fields, len(dl.fields)+len(fields))
	for k, v := range dl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &DefaultLog{logger: dl.logger, fields: merged}
}

// New returns a Logger backed by the standard logrus instance.
func New() *DefaultLog {
	return &DefaultLog{logger: logrus.StandardLogger(), fields: logrus.Fields{}}
}

// SetLevel sets the level of the standard logrus instance used by New().
func SetLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

// ParseLevel turns a --log-level flag value into a logrus.Level.
func ParseLevel(s string) (logrus.Level, error) {
	return logrus.ParseLevel(s)
}
