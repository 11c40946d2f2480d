// Copyright (c) 2025 A Bit of Help, Inc.

// Package writer provides the cleanup and result log stage for the processing pipeline.
package writer

import (
	"context"
	"errors"
	"io/fs"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/processor"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/resultlog"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"go.uber.org/zap"
)

// Name identifies the stage in logs and failure records
const Name = "writer"

// Remover deletes intermediate artifacts
type Remover interface {
	DeletePath(path string) error
}

// LineWriter is the result log sink
type LineWriter interface {
	WriteLine(line string) error
}

// Stage is the terminal stage. For each item it deletes the intermediate file, then
// writes one result line for a converted item and updates the statistics. Items that
// failed upstream only get their intermediate file removed, if there is one, and are
// counted as failed. It returns once the shutdown message arrives.
func Stage(
	ctx context.Context,
	logger *zap.Logger,
	in *queue.BoundedQueue[*workitem.WorkItem],
	remover Remover,
	sink LineWriter,
	pipelineStats *stats.Stats,
	collector *customErrors.ErrorCollector,
) error {
	return processor.Stage(ctx, processor.Config{
		Name:         Name,
		Operation:    "cleanup",
		Logger:       logger,
		In:           in,
		HandleFailed: true,
		Collector:    collector,
		Process: func(_ context.Context, item *workitem.WorkItem) error {
			if item.Failed() {
				discard(logger, remover, item)
				pipelineStats.RecordFailed()
				logger.Warn("Item not converted",
					zap.Uint64("item_id", item.ID),
					zap.String("source_path", item.SourcePath),
					zap.String("stage", item.FailedStage),
					zap.Error(item.Err))
				return nil
			}

			if err := remover.DeletePath(item.IntermediatePath); err != nil {
				pipelineStats.RecordFailed()
				return err
			}

			gained, percent := item.Gained()
			line := resultlog.FormatLine(item.SourcePath, item.OutputPath, gained, percent)
			if err := sink.WriteLine(line); err != nil {
				pipelineStats.RecordFailed()
				return customErrors.Wrap(customErrors.ErrIOFailure, err)
			}
			pipelineStats.RecordConverted(item.SourceSize, item.OutputSize)

			logger.Info("Converted",
				zap.Uint64("item_id", item.ID),
				zap.String("source_path", item.SourcePath),
				zap.String("output_path", item.OutputPath),
				zap.Int64("gained_bytes", gained),
				zap.Float64("gained_percent", percent))
			return nil
		},
	})
}

// discard removes whatever intermediate output a failed item left behind
func discard(logger *zap.Logger, remover Remover, item *workitem.WorkItem) {
	if item.IntermediatePath == "" {
		return
	}
	err := remover.DeletePath(item.IntermediatePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove intermediate file",
			zap.Uint64("item_id", item.ID),
			zap.String("intermediate_path", item.IntermediatePath),
			zap.Error(err))
	}
}
