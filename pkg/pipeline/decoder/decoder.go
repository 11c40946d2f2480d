// Copyright (c) 2025 A Bit of Help, Inc.

// Package decoder provides the decode stage for the processing pipeline.
package decoder

import (
	"context"
	"time"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/processor"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"go.uber.org/zap"
)

// Name identifies the stage in logs and failure records
const Name = "decoder"

// Decoder writes the intermediate artifact of a source file
type Decoder interface {
	DecodeToIntermediate(ctx context.Context, sourcePath, destPath string) error
}

// PathGenerator selects a fresh intermediate path for a source file
type PathGenerator interface {
	Next(sourcePath string) (string, error)
}

// Throttle is the soft cap applied to the outgoing queue
type Throttle struct {
	// SoftCap pauses decoding while the outgoing queue holds at least this many
	// messages; 0 disables throttling
	SoftCap int

	// PollInterval is how often the depth is re-checked while paused
	PollInterval time.Duration
}

// Stage decodes every item into a fresh intermediate file and forwards it to out. The
// shutdown message is not forwarded: out feeds the encoder pool, whose shutdown
// messages are injected by the coordinator once this stage has returned.
func Stage(
	ctx context.Context,
	logger *zap.Logger,
	in, out *queue.BoundedQueue[*workitem.WorkItem],
	decoder Decoder,
	names PathGenerator,
	throttle Throttle,
	pipelineStats *stats.Stats,
	collector *customErrors.ErrorCollector,
) error {
	return processor.Stage(ctx, processor.Config{
		Name:      Name,
		Operation: "decode_to_intermediate",
		Logger:    logger,
		In:        in,
		Out:       out,
		Collector: collector,
		Process: func(ctx context.Context, item *workitem.WorkItem) error {
			path, err := names.Next(item.SourcePath)
			if err != nil {
				return err
			}
			item.IntermediatePath = path

			start := time.Now()
			if err := decoder.DecodeToIntermediate(ctx, item.SourcePath, path); err != nil {
				return err
			}
			pipelineStats.IncrementDecoded()

			logger.Debug("Decoded to intermediate",
				zap.Uint64("item_id", item.ID),
				zap.String("source_path", item.SourcePath),
				zap.String("intermediate_path", path),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		},
		AfterForward: func(ctx context.Context) error {
			if throttle.SoftCap > 0 && out.Depth() >= throttle.SoftCap {
				logger.Debug("Encode queue at soft cap, pausing decoder",
					zap.Int("depth", out.Depth()),
					zap.Int("soft_cap", throttle.SoftCap))
			}
			return out.WaitBelow(ctx, throttle.SoftCap, throttle.PollInterval)
		},
	})
}
