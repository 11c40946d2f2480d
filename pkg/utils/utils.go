// Copyright (c) 2025 A Bit of Help, Inc.

// Package utils provides utility functions for the application
package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultGracePeriod is how long an interrupted run may keep draining before it is forced to exit
const DefaultGracePeriod = 30 * time.Second

// ShutdownOptions tunes SetupGracefulShutdownWithOptions
type ShutdownOptions struct {
	// GracePeriod bounds the time between the first signal and a forced exit
	GracePeriod time.Duration

	// Exit terminates the process; os.Exit when nil
	Exit func(int)

	// Signals to watch; SIGINT, SIGTERM, SIGHUP and SIGQUIT when empty
	Signals []os.Signal
}

// SetupGracefulShutdown configures signal handling for graceful shutdown
// It returns a function that should be deferred to clean up signal handling
func SetupGracefulShutdown(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) func() {
	return SetupGracefulShutdownWithOptions(ctx, cancel, logger, ShutdownOptions{})
}

// SetupGracefulShutdownWithOptions is SetupGracefulShutdown with explicit options.
// The first signal cancels the run so in-flight items drain; a second signal, or
// the grace period elapsing, exits with status 1.
func SetupGracefulShutdownWithOptions(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, opts ShutdownOptions) func() {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, opts.Signals...)

	// Create a channel to signal when the goroutine should exit
	done := make(chan struct{})
	exited := make(chan struct{})

	// Start goroutine for signal handling
	go func() {
		defer close(exited)
		defer logger.Debug("Signal handling goroutine exited")

		var deadline <-chan time.Time
		interrupted := false
		ctxDone := ctx.Done()

		for {
			select {
			case sig := <-sigChan:
				if interrupted {
					// Second signal received, force immediate exit
					logger.Warn("Received second signal, forcing immediate shutdown",
						zap.String("signal", sig.String()))
					opts.Exit(1)
					return
				}

				// First signal, try graceful shutdown
				logger.Info("Received signal, initiating graceful shutdown",
					zap.String("signal", sig.String()),
					zap.Duration("grace_period", opts.GracePeriod))
				interrupted = true
				timer := time.NewTimer(opts.GracePeriod)
				defer timer.Stop()
				deadline = timer.C
				cancel()
			case <-deadline:
				logger.Warn("Graceful shutdown timed out, forcing exit",
					zap.Duration("grace_period", opts.GracePeriod))
				opts.Exit(1)
				return
			case <-ctxDone:
				// Cancellation from elsewhere does not end signal handling; a
				// signal during the drain must still be able to force an exit.
				ctxDone = nil
			case <-done:
				return
			}
		}
	}()

	// Return a cleanup function
	return func() {
		close(done)
		<-exited

		// Stop signal notifications
		signal.Stop(sigChan)

		logger.Debug("Signal handling cleaned up")
	}
}
