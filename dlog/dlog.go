// Package dlog maintains the bench log, an append-only text record of
// everything done to the instruments.  Each day gets its own file named
// YYYY-MM-DD.log so a run can be cross-referenced against the lab
// notebook by date.
package dlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Open creates or appends to today's log file in dir and returns a
// logger writing to both the file and stderr.  The directory is created
// if it does not exist.
func Open(dir string) (*logrus.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	name := time.Now().Format("2006-01-02") + ".log"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening bench log: %w", err)
	}
	log := logrus.New()
	log.SetOutput(io.MultiWriter(f, os.Stderr))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return log, nil
}

// Discard returns a logger that drops everything, for callers that do
// not want a bench log.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
