package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables a rotated log file next to stderr output.
	File  string
	JSON  bool
	Quiet bool
}

// New builds the process logger. An unknown level falls back to info.
func New(opts Options) *logrus.Logger {
	logger, _ := Open(opts)
	return logger
}

// Open is New for loggers that do not live as long as the process. The returned func closes the
// rotated log file, if any; it is safe to call more than once.
func Open(opts Options) (*logrus.Logger, func()) {
	logger := logrus.New()
	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	closeFn := func() {}
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}
	if opts.File != "" {
		_ = os.MkdirAll(filepath.Dir(opts.File), 0o755)
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		writers = append(writers, file)
		closeFn = func() { _ = file.Close() }
	}
	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
	return logger, closeFn
}

// Discard returns a logger that drops everything, for tests and embedding.
func Discard() *logrus.Logger {
	return New(Options{Quiet: true})
}
