package utils

import (
	"fmt"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	loggers         map[string]*logrus.Logger
	DefaultLogLevel = logrus.InfoLevel
)

func init() {
	loggers = make(map[string]*logrus.Logger)
}

// NewLogrusLogger returns a prefixed logger. The underlying logrus
// instance is cached per prefix so log levels can be adjusted later.
func NewLogrusLogger(level logrus.Level, prefix string) *logrus.Entry {
	if logger, found := loggers[prefix]; found {
		return logger.WithField("prefix", prefix)
	}
	l := logrus.New()
	l.Level = level
	l.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		ForceColors:     true,
		ForceFormatting: true,
	}
	loggers[prefix] = l
	return l.WithField("prefix", prefix)
}

func SetLogLevel(prefix string, level logrus.Level) error {
	if logger, found := loggers[prefix]; found {
		logger.SetLevel(level)
		return nil
	}
	return fmt.Errorf("logger [%v] not found", prefix)
}

func GetLoggers() map[string]*logrus.Logger {
	return loggers
}
