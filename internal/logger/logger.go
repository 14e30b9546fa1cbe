// Package logger builds the process logger shared by the binaries.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stdout. Development uses the text
// formatter; every other environment logs JSON. An unparseable level falls
// back to info.
func New(environment, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if environment == "development" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		l.WithField("level", level).Warn("unknown log level, using info")
	}
	l.SetLevel(lvl)
	return l
}
