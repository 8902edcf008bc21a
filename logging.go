package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// setupLogging builds the run logger. Verbose wins over quiet. SQLFERRY_LOG_LEVEL
// overrides both when it names a valid logrus level.
func setupLogging(verbose, quiet bool, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	level := logrus.InfoLevel
	switch {
	case verbose:
		level = logrus.DebugLevel
	case quiet:
		level = logrus.WarnLevel
	}
	if env := os.Getenv("SQLFERRY_LOG_LEVEL"); env != "" {
		if l, err := logrus.ParseLevel(env); err == nil {
			level = l
		}
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(out)
	return logger
}
