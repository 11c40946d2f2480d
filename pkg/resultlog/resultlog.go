// Copyright (c) 2025 A Bit of Help, Inc.

// Package resultlog appends one outcome line per converted file to the result log.
package resultlog

import (
	"fmt"
	"os"
	"path/filepath"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/gofrs/flock"
)

// FormatLine renders the result line for a converted file.
func FormatLine(sourcePath, outputPath string, gained int64, percent float64) string {
	return fmt.Sprintf("Converted \"%s\" to \"%s\" and gained %d (%.2f%%)", sourcePath, outputPath, gained, percent)
}

// Sink is the append-mode result log. Within a process only the cleanup stage writes
// to it; the file lock keeps lines whole when several runs share one log.
type Sink struct {
	path string
	file *os.File
	lock *flock.Flock
}

// Open creates the log's directory if needed and opens the log for appending.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, customErrors.Wrap(customErrors.ErrIOFailure, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, customErrors.Wrap(customErrors.ErrIOFailure, err)
	}
	return &Sink{
		path: path,
		file: file,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the log location.
func (s *Sink) Path() string {
	return s.path
}

// WriteLine appends line and a newline under the inter-process lock.
func (s *Sink) WriteLine(line string) error {
	if err := s.lock.Lock(); err != nil {
		return customErrors.Wrap(customErrors.ErrIOFailure, fmt.Errorf("lock %s: %w", s.lock.Path(), err))
	}
	defer s.lock.Unlock()

	if _, err := s.file.WriteString(line + "\n"); err != nil {
		return customErrors.Wrap(customErrors.ErrIOFailure, err)
	}
	return nil
}

// Close closes the log file and releases the lock handle.
func (s *Sink) Close() error {
	lockErr := s.lock.Close()
	if err := s.file.Close(); err != nil {
		return customErrors.Wrap(customErrors.ErrIOFailure, err)
	}
	return lockErr
}
