// Copyright (c) 2025 A Bit of Help, Inc.

// Package reader validates the input paths and seeds the first pipeline queue.
package reader

import (
	"context"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Stage turns every readable path into a WorkItem on out, followed by one shutdown
// message. A path whose size cannot be read is reported, added to collector and
// excluded; the run continues with the rest. It returns the number of accepted items.
func Stage(
	ctx context.Context,
	logger *zap.Logger,
	paths []string,
	stat workitem.StatFunc,
	out *queue.BoundedQueue[*workitem.WorkItem],
	pipelineStats *stats.Stats,
	collector *customErrors.ErrorCollector,
) (int, error) {
	defer logger.Debug("Reader goroutine completed")

	accepted := 0
	for _, path := range paths {
		item, err := workitem.New(path, stat)
		if err != nil {
			rejectErr := customErrors.NewPipelineError(customErrors.Wrap(customErrors.ErrInvalidInput, err), "reader", 0, "stat_source", path)
			logger.Warn("Skipping unreadable input file",
				zap.String("source_path", path),
				zap.Error(err))
			collector.Add(rejectErr)
			pipelineStats.RecordRejected()
			continue
		}

		if err := out.EnqueueItem(ctx, item); err != nil {
			logger.Debug("Reader canceled by context", zap.Error(err))
			return accepted, err
		}
		accepted++
		pipelineStats.RecordAccepted()

		logger.Debug("Accepted input file",
			zap.Uint64("item_id", item.ID),
			zap.String("source_path", path),
			zap.String("source_size", humanize.Bytes(uint64(item.SourceSize))))
	}

	if err := out.EnqueueShutdown(ctx); err != nil {
		logger.Debug("Reader canceled by context", zap.Error(err))
		return accepted, err
	}
	return accepted, nil
}
