package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Named loggers
// --------------------------------------------------------------------------

var rootLogger = newRootLogger()

func newRootLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return l
}

// CreateLogger returns a logger for the given package name. All loggers share
// one root logger, so InitLoggers changes the level for every package at once.
func CreateLogger(pkgName string) *logrus.Entry {
	return rootLogger.WithField("pkg", pkgName)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to a logrus.Level
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers sets the level of all loggers
func InitLoggers(level string) {
	rootLogger.SetLevel(parseLogLevel(level))
}
