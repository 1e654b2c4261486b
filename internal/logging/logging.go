// Package logging assembles the process logger: console or rotating file
// output, optional Graylog forwarding, per-key throttling for per-frame log
// lines, and a zerolog bridge for subsystems that log through zerolog.
package logging

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// NewRotatingFile opens a size-rotated log file for this session.
func NewRotatingFile(logsDir, name string, sessionStart time.Time, debug bool) *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   LogFilePath(logsDir, name, sessionStart),
		MaxSize:    32, // MB
		MaxBackups: 3,
		MaxAge:     14,
	}
	if debug {
		w.MaxSize = 256
	}
	return w
}

// NewGELFWriter dials the Graylog input at address.
func NewGELFWriter(address, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create graylog writer: %w", err)
	}
	w.Facility = facility
	return w, nil
}

// NewSessionID returns a fresh identifier attached to every record of a run.
func NewSessionID() string {
	return uuid.NewString()
}
