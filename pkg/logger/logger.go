// Copyright (c) 2025 A Bit of Help, Inc.

// Package logger provides logging functionality for the application
package logger

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExitFunc is a function that exits the program with a given status code
type ExitFunc func(int)

// DefaultExitFunc is the default implementation of ExitFunc
var DefaultExitFunc = os.Exit

// Options controls how the logger renders records.
type Options struct {
	// Verbose lowers the level to debug so per-item stage traces are shown
	Verbose bool

	// Console selects the human readable colored encoder instead of JSON
	Console bool
}

// DefaultOptions uses the console encoder when stderr is attached to a terminal.
func DefaultOptions() Options {
	fd := os.Stderr.Fd()
	return Options{
		Console: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// NewConfig builds the zap configuration for the given options.
// Records always go to stderr; stdout carries the progress lines.
func NewConfig(opts Options) zap.Config {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	if opts.Console {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	}
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return config
}

// InitLoggerWithExit initializes and returns a configured zap logger
// It takes an exit function to allow for testing
func InitLoggerWithExit(opts Options, exit ExitFunc) *zap.Logger {
	logger, err := NewConfig(opts).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		exit(1)
		return zap.NewNop()
	}
	return logger
}

// InitLogger initializes and returns a configured zap logger
// This is a wrapper around InitLoggerWithExit that uses the default exit function
func InitLogger(verbose bool) *zap.Logger {
	opts := DefaultOptions()
	opts.Verbose = verbose
	return InitLoggerWithExit(opts, DefaultExitFunc)
}

// SafeSync syncs the logger and ignores "bad file descriptor" errors
// which can occur during shutdown when stderr is already closed
func SafeSync(logger *zap.Logger) {
	if logger == nil {
		return
	}

	// Ignore "bad file descriptor" errors which can happen during shutdown
	if err := logger.Sync(); err != nil && err.Error() != "sync /dev/stderr: bad file descriptor" {
		// Can't use logger here as we're syncing it
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}
