package spkgconf

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// SetupLogging points logrus at stderr plus the persistent log file and maps
// the configured verbosity to a level. Failure to open the log file is not
// fatal, logging falls back to stderr only.
func (c *Config) SetupLogging() {
	switch c.Verbosity {
	case 0:
		log.SetLevel(log.ErrorLevel)
	case 1:
		log.SetLevel(log.WarnLevel)
	case 2:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   c.Color == "never",
		ForceColors:     c.Color == "always",
	})

	if err := os.MkdirAll(filepath.Dir(c.Paths.LogFile), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(c.Paths.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.WithError(err).Warn("cannot open log file")
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
}
