// Copyright (c) 2025 A Bit of Help, Inc.

// Package processor provides the generic stage worker shared by every pipeline stage.
package processor

import (
	"context"
	"fmt"
	"runtime/debug"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"go.uber.org/zap"
)

// ProcessorFunc transforms one item in place with context awareness
type ProcessorFunc func(ctx context.Context, item *workitem.WorkItem) error

// Hook runs after an item has been forwarded downstream
type Hook func(ctx context.Context) error

// Config describes one stage worker
type Config struct {
	// ID distinguishes the workers of a pool
	ID int

	// Name is the stage name used in logs and recorded on failed items
	Name string

	// Operation names the transform in PipelineError values
	Operation string

	Logger *zap.Logger

	// In is drained until a shutdown message arrives
	In *queue.BoundedQueue[*workitem.WorkItem]

	// Out receives every item after the transform; nil for the terminal stage
	Out *queue.BoundedQueue[*workitem.WorkItem]

	// ForwardShutdown makes the worker pass its shutdown message on to Out. Workers
	// that feed a pool leave it false; the coordinator then injects one shutdown per
	// downstream worker.
	ForwardShutdown bool

	// HandleFailed passes items already failed upstream to Process instead of
	// forwarding them untouched
	HandleFailed bool

	Process ProcessorFunc

	// AfterForward runs after each item is enqueued on Out
	AfterForward Hook

	// Collector receives every per-item failure; may be nil
	Collector *customErrors.ErrorCollector
}

// Stage runs the dequeue, transform and enqueue loop until a shutdown message is
// received (returns nil) or ctx is done (returns the context error). Per-item failures,
// panics included, are recorded on the item and never stop the loop.
func Stage(ctx context.Context, cfg Config) error {
	idField := zap.Int(fmt.Sprintf("%s_id", cfg.Name), cfg.ID)
	defer cfg.Logger.Debug(fmt.Sprintf("%s goroutine completed", cfg.Name), idField)

	for {
		msg, err := cfg.In.Dequeue(ctx)
		if err != nil {
			logContextStop(cfg.Logger, cfg.Name, idField, err)
			return err
		}

		if msg.IsShutdown() {
			cfg.Logger.Debug(fmt.Sprintf("%s received shutdown", cfg.Name), idField)
			if cfg.ForwardShutdown && cfg.Out != nil {
				if err := cfg.Out.EnqueueShutdown(ctx); err != nil {
					logContextStop(cfg.Logger, cfg.Name, idField, err)
					return err
				}
			}
			return nil
		}

		item := msg.Value()
		if !item.Failed() || cfg.HandleFailed {
			if err := safeProcess(ctx, cfg, item); err != nil {
				pipelineErr := customErrors.NewPipelineError(err, cfg.Name, cfg.ID, cfg.Operation, item.SourcePath)
				item.Fail(cfg.Name, pipelineErr)
				if cfg.Collector != nil {
					cfg.Collector.Add(pipelineErr)
				}

				logFailure(cfg.Logger, cfg.Name, idField, item, pipelineErr)
			} else {
				cfg.Logger.Debug(fmt.Sprintf("Processed item (%s)", cfg.Name),
					idField,
					zap.Uint64("item_id", item.ID),
					zap.String("source_path", item.SourcePath))
			}
		}

		if cfg.Out == nil {
			continue
		}
		if err := cfg.Out.EnqueueItem(ctx, item); err != nil {
			logContextStop(cfg.Logger, fmt.Sprintf("Sending to next stage (%s)", cfg.Name), idField, err)
			return err
		}
		if cfg.AfterForward != nil {
			if err := cfg.AfterForward(ctx); err != nil {
				logContextStop(cfg.Logger, cfg.Name, idField, err)
				return err
			}
		}
	}
}

// safeProcess runs the transform, converting a panic into an ErrPanic error
func safeProcess(ctx context.Context, cfg Config, item *workitem.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg.Logger.Error("Panic in processor stage",
				zap.Int(fmt.Sprintf("%s_id", cfg.Name), cfg.ID),
				zap.String("stack", string(debug.Stack())),
				zap.Any("panic_value", r),
				zap.String("source_path", item.SourcePath))
			err = fmt.Errorf("%w: %v", customErrors.ErrPanic, r)
		}
	}()
	return cfg.Process(ctx, item)
}

func logFailure(logger *zap.Logger, name string, idField zap.Field, item *workitem.WorkItem, err error) {
	fields := []zap.Field{
		idField,
		zap.Uint64("item_id", item.ID),
		zap.String("source_path", item.SourcePath),
		zap.Error(err),
	}
	switch {
	case customErrors.IsCancellationError(err):
		logger.Debug(fmt.Sprintf("%s canceled", name), fields...)
	case customErrors.IsTimeoutError(err):
		logger.Warn(fmt.Sprintf("%s timed out", name), fields...)
	default:
		logger.Error(fmt.Sprintf("%s error", name), fields...)
	}
}

func logContextStop(logger *zap.Logger, name string, idField zap.Field, err error) {
	if customErrors.IsTimeoutError(err) {
		logger.Warn(fmt.Sprintf("%s timed out", name), idField, zap.Error(err))
	} else if customErrors.IsCancellationError(err) {
		logger.Debug(fmt.Sprintf("%s canceled by context", name), idField, zap.Error(err))
	} else {
		logger.Warn(fmt.Sprintf("%s stopped by unknown context error", name), idField, zap.Error(err))
	}
}
