// Package logging configures logrus for the two binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewCLI logs warnings and above to stderr without timestamps.
func NewCLI(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
	if err := setLevel(logger, level, logrus.WarnLevel); err != nil {
		return nil, err
	}
	return logger, nil
}

// NewDaemon logs to out with full timestamps, info level unless overridden.
func NewDaemon(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	if err := setLevel(logger, level, logrus.InfoLevel); err != nil {
		return nil, err
	}
	return logger, nil
}

// OpenLogFile opens the daemon log for appending.
func OpenLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return f, nil
}

func setLevel(logger *logrus.Logger, level string, fallback logrus.Level) error {
	level = strings.TrimSpace(level)
	if level == "" {
		logger.SetLevel(fallback)
		return nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(parsed)
	return nil
}
