package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/util/pathutil"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	// levelOverride is set by SetLevel (the CLI --verbose flag) and wins over config.
	levelOverride *logrus.Level
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()

	// Load configuration from remit.yml
	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	logger.SetLevel(resolveLevel(logCfg))

	if os.Getenv("REMIT_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	var writers []io.Writer
	if w := openFileSink(logCfg); w != nil {
		writers = append(writers, w)
	}

	toStderr := shouldLogToStderr(logCfg, logger.GetLevel())
	if toStderr {
		writers = append(writers, stderrWriter)
	}

	// Colour only when the one and only sink is an interactive terminal.
	format := logCfg.Format
	format.Colors = toStderr && len(writers) == 1 && isTerminal(os.Stderr)

	switch format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
			Colors:           format.Colors,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: format})
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// SetLevel changes the level of every logger, including ones created later.
func SetLevel(level logrus.Level) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	levelOverride = &level
	for _, entry := range loggers {
		entry.Logger.SetLevel(level)
	}
}

func resolveLevel(cfg Config) logrus.Level {
	if levelOverride != nil {
		return *levelOverride
	}
	levelStr := "info"
	if env := os.Getenv("REMIT_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// LogFilePath returns the file the file sink writes to today.
func LogFilePath(cfg Config) string {
	if cfg.File.Path != "" {
		return pathutil.MustExpand(cfg.File.Path)
	}
	return filepath.Join(paths.LogsDir(), fmt.Sprintf("remit-%s.log", time.Now().Format("2006-01-02")))
}

// openFileSink opens the log file for appending. Failures are silent unless a
// path was configured explicitly, since logging must never break a transfer.
func openFileSink(cfg Config) io.Writer {
	if cfg.File.Disabled || os.Getenv("REMIT_LOG_FILE") == "off" {
		return nil
	}
	logFilePath := LogFilePath(cfg)
	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		if cfg.File.Path != "" {
			logrus.Warnf("Failed to create log directory %s: %v", dir, err)
		}
		return nil
	}
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		if cfg.File.Path != "" {
			logrus.Warnf("Failed to open log file %s: %v", logFilePath, err)
		}
		return nil
	}
	return file
}

func shouldLogToStderr(cfg Config, level logrus.Level) bool {
	switch cfg.Format.StructuredToStderr {
	case "always":
		return true
	case "never":
		return false
	default:
		// Interactive use keeps stderr for pretty output unless debugging.
		isDebug := os.Getenv("REMIT_DEBUG") == "1" || level >= logrus.DebugLevel
		return isDebug || !isTerminal(os.Stderr)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

