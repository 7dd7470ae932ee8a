// Package logger configures the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	// File is appended to. Empty means stderr.
	File  string
	Debug bool
}

// Configure points the standard logger at opts.File and sets its level. The
// returned closer releases the file and is never nil.
func Configure(opts Options) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.WithField("debug", opts.Debug).Debug("Logging configured")
	return f, nil
}
