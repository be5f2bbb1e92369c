package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the global logrus logger. format is "text" or
// "json"; level is any level accepted by logrus.ParseLevel.
func SetupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	logrus.SetLevel(lvl)
	return nil
}
