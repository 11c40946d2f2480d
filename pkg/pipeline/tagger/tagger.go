// Copyright (c) 2025 A Bit of Help, Inc.

// Package tagger provides the metadata stage for the processing pipeline.
package tagger

import (
	"context"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/processor"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"go.uber.org/zap"
)

// Name identifies the stage in logs and failure records
const Name = "tagger"

// MetadataExtractor reads the tags of a source file
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, path string) (workitem.Metadata, error)
}

// Stage enriches every item with its tags and forwards it, along with the shutdown
// message, to out. Extraction is best effort: on error the fields that were read are
// kept and the item continues.
func Stage(
	ctx context.Context,
	logger *zap.Logger,
	in, out *queue.BoundedQueue[*workitem.WorkItem],
	extractor MetadataExtractor,
	pipelineStats *stats.Stats,
	collector *customErrors.ErrorCollector,
) error {
	return processor.Stage(ctx, processor.Config{
		Name:            Name,
		Operation:       "extract_metadata",
		Logger:          logger,
		In:              in,
		Out:             out,
		ForwardShutdown: true,
		Collector:       collector,
		Process: func(ctx context.Context, item *workitem.WorkItem) error {
			md, err := extractor.ExtractMetadata(ctx, item.SourcePath)
			item.Metadata = md
			if err != nil {
				if customErrors.IsCancellationError(err) {
					return err
				}
				logger.Warn("Metadata unavailable, continuing without tags",
					zap.Uint64("item_id", item.ID),
					zap.String("source_path", item.SourcePath),
					zap.Error(err))
			}
			pipelineStats.IncrementTagged()
			logger.Debug("Extracted metadata",
				zap.Uint64("item_id", item.ID),
				zap.String("source_path", item.SourcePath),
				zap.Bool("tags_found", !md.IsEmpty()))
			return nil
		},
	})
}
