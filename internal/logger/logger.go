package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the global logger instance used by every package.
var Log *logrus.Logger

// Config holds configuration for logger setup.
type Config struct {
	Level   logrus.Level
	Format  string // "text" or "json"
	Verbose bool
	Output  io.Writer // defaults to os.Stderr
}

// Init (re)initializes the global logger with the given configuration.
func Init(config *Config) {
	Log = logrus.New()
	Log.SetLevel(config.Level)

	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	Log.SetOutput(out)

	if config.Format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        "15:04:05",
			DisableLevelTruncation: true,
		})
	}

	if config.Verbose {
		Log.SetReportCaller(true)
	}
}

// ParseLevel maps a level name to a logrus level, falling back to info.
func ParseLevel(name string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// init ensures the logger is always available with default settings.
func init() {
	Init(&Config{
		Level:  logrus.InfoLevel,
		Format: "text",
	})
}
