package aio

import (
	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var defaultLogger Logger = logrus.StandardLogger()

// SetLogger replaces the package logger. It is not safe to call while
// servers or clients are running.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	defaultLogger = logger
}

func GetLogger() Logger {
	return defaultLogger
}

// withFields tags the logger when it supports structured fields.
func withFields(logger Logger, fields logrus.Fields) Logger {
	if fl, ok := logger.(logrus.FieldLogger); ok {
		return fl.WithFields(fields)
	}
	return logger
}
