package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"ipcam-analysis/config"

	log "github.com/sirupsen/logrus"
)

// ParseLevel versteht die logrus-Namen sowie CRITICAL (entspricht fatal)
func ParseLevel(name string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "critical":
		return log.FatalLevel, nil
	case "":
		return log.InfoLevel, nil
	}
	return log.ParseLevel(name)
}

// Init initializes the global logger based on the provided configuration.
// The returned closer releases the log file, if one was opened.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}

	var file *os.File
	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0750); err != nil {
			log.Errorf("Failed to create log directory '%s': %v", logDir, err)
		} else {
			file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
			if err != nil {
				log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
				file = nil
			} else {
				writers = append(writers, file)
			}
		}
	}

	if len(writers) == 0 {
		// ohne Datei und ohne Konsole bleibt nur stderr
		writers = append(writers, os.Stderr)
	}
	log.SetOutput(io.MultiWriter(writers...))

	log.Infof("Logger initialized (level %s)", level)
	if file == nil {
		return io.NopCloser(nil), nil
	}
	return file, nil
}
