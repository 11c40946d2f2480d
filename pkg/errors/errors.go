// Copyright (c) 2025 A Bit of Help, Inc.

// Package errors provides custom error types and error handling utilities for the application.
package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Standard errors that can be used for comparison with errors.Is
var (
	// ErrInvalidInput indicates a source file was rejected before entering the pipeline
	ErrInvalidInput = errors.New("invalid input file")

	// ErrIOFailure indicates an I/O operation failed
	ErrIOFailure = errors.New("I/O operation failed")

	// ErrMetadata indicates tag extraction did not produce a usable report
	ErrMetadata = errors.New("metadata extraction failed")

	// ErrDecode indicates the external decoder failed or produced no intermediate artifact
	ErrDecode = errors.New("decode to intermediate failed")

	// ErrEncode indicates the external encoder exited with an error
	ErrEncode = errors.New("encode to target failed")

	// ErrOutputMissing indicates the encoder returned but the output file does not exist
	ErrOutputMissing = errors.New("encoded output file missing")

	// ErrCleanup indicates the intermediate artifact could not be removed
	ErrCleanup = errors.New("intermediate cleanup failed")

	// ErrToolMissing indicates a required external binary is not installed
	ErrToolMissing = errors.New("external tool not available")

	// ErrPathExhausted indicates no free intermediate path was found
	ErrPathExhausted = errors.New("no free intermediate path")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrPanic indicates a panic occurred
	ErrPanic = errors.New("panic occurred")
)

// PipelineError represents an error that occurred in the pipeline
type PipelineError struct {
	// Err is the underlying error
	Err error

	// Stage is the pipeline stage where the error occurred
	Stage string

	// WorkerID is the ID of the stage worker
	WorkerID int

	// Operation is the operation being performed
	Operation string

	// Time is when the error occurred
	Time time.Time

	// FilePath is the source file the failing item was created from
	FilePath string
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s (stage=%s, worker=%d, file=%s): %v",
		e.Time.Format(time.RFC3339),
		e.Operation,
		e.Stage,
		e.WorkerID,
		e.FilePath,
		e.Err)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError
func NewPipelineError(err error, stage string, workerID int, operation, filePath string) *PipelineError {
	return &PipelineError{
		Err:       err,
		Stage:     stage,
		WorkerID:  workerID,
		Operation: operation,
		Time:      time.Now(),
		FilePath:  filePath,
	}
}

// Wrap attaches a sentinel kind to a lower level error so callers can match it with errors.Is.
func Wrap(kind, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// IsIOError checks if the error is an I/O error
func IsIOError(err error) bool {
	var pathErr *os.PathError
	return errors.Is(err, ErrIOFailure) || errors.As(err, &pathErr)
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCancellationError checks if the error is a cancellation error
func IsCancellationError(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// ErrorCollector collects errors reported concurrently by stage workers.
type ErrorCollector struct {
	mu     sync.Mutex
	errors []error
}

// NewErrorCollector creates a new ErrorCollector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collector
func (c *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

// HasErrors returns true if the collector has any errors
func (c *ErrorCollector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors) > 0
}

// Len returns the number of collected errors
func (c *ErrorCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

// Error implements the error interface
func (c *ErrorCollector) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errors) == 0 {
		return "no errors"
	}

	if len(c.errors) == 1 {
		return c.errors[0].Error()
	}

	msg := fmt.Sprintf("%d errors occurred:\n", len(c.errors))
	for i, err := range c.errors {
		msg += fmt.Sprintf("  %d: %v\n", i+1, err)
	}
	return msg
}

// Errors returns a copy of all collected errors
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errors))
	copy(out, c.errors)
	return out
}

// Combined returns the collected errors as a single error, or nil when empty.
// The result supports errors.Is against any of the collected errors.
func (c *ErrorCollector) Combined() error {
	return multierr.Combine(c.Errors()...)
}
