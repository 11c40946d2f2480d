// Copyright (c) 2025 A Bit of Help, Inc.

// Package encoder provides the fan-out encode stage for the processing pipeline.
package encoder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abitofhelp/mp3toogg/pkg/command"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/processor"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"github.com/dustin/go-humanize"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Name identifies the stage in logs and failure records
const Name = "encoder"

// Encoder produces the final artifact and reports its size
type Encoder interface {
	EncodeFinal(ctx context.Context, intermediatePath, destPath string, md workitem.Metadata) ([]byte, error)
	Stat(path string) (int64, error)
}

// OutputLayout maps a source path to its output path
type OutputLayout struct {
	Dir       string
	SourceExt string
	TargetExt string
}

// PathFor returns the output path of sourcePath
func (l OutputLayout) PathFor(sourcePath string) string {
	return workitem.OutputPathFor(sourcePath, l.Dir, l.SourceExt, l.TargetExt)
}

// Pool runs a fixed number of encode workers sharing one input queue. Workers never
// forward shutdown messages: the coordinator enqueues one per worker on in, and one
// on out after Wait returns.
type Pool struct {
	pool    *ants.Pool
	wg      sync.WaitGroup
	mu      sync.Mutex
	errs    []error
	workers int
}

// Start launches workers encode workers and returns immediately
func Start(
	ctx context.Context,
	logger *zap.Logger,
	workers int,
	in, out *queue.BoundedQueue[*workitem.WorkItem],
	encoder Encoder,
	layout OutputLayout,
	pipelineStats *stats.Stats,
	collector *customErrors.ErrorCollector,
) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: encoder pool needs at least one worker, got %d", customErrors.ErrInvalidInput, workers)
	}

	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pool: %w", err)
	}

	p := &Pool{pool: pool, workers: workers}
	process := encodeFunc(logger, encoder, layout, pipelineStats)

	for id := 0; id < workers; id++ {
		p.wg.Add(1)
		workerID := id
		submitErr := pool.Submit(func() {
			defer p.wg.Done()
			err := processor.Stage(ctx, processor.Config{
				ID:        workerID,
				Name:      Name,
				Operation: "encode_final",
				Logger:    logger,
				In:        in,
				Out:       out,
				Collector: collector,
				Process:   process,
			})
			if err != nil {
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
			}
		})
		if submitErr != nil {
			p.wg.Done()
			// Workers already running stop once the caller cancels ctx
			go func() {
				p.wg.Wait()
				pool.Release()
			}()
			return nil, fmt.Errorf("failed to start encoder worker %d: %w", workerID, submitErr)
		}
	}

	logger.Debug("Encoder pool started", zap.Int("workers", workers))
	return p, nil
}

// Workers returns the pool size, i.e. the number of shutdown messages it consumes
func (p *Pool) Workers() int {
	return p.workers
}

// Wait blocks until every worker has returned and releases the pool. It returns the
// first error a worker stopped with.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.pool.Release()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) > 0 {
		return p.errs[0]
	}
	return nil
}

func encodeFunc(logger *zap.Logger, encoder Encoder, layout OutputLayout, pipelineStats *stats.Stats) processor.ProcessorFunc {
	return func(ctx context.Context, item *workitem.WorkItem) error {
		outputPath := layout.PathFor(item.SourcePath)
		item.OutputPath = outputPath

		start := time.Now()
		output, err := encoder.EncodeFinal(ctx, item.IntermediatePath, outputPath, item.Metadata)
		if err != nil {
			return err
		}

		size, err := encoder.Stat(outputPath)
		if err != nil {
			return customErrors.Wrap(customErrors.ErrOutputMissing, err)
		}
		item.SetOutput(outputPath, size)
		pipelineStats.IncrementEncoded()

		logger.Debug("Encoded output",
			zap.Uint64("item_id", item.ID),
			zap.String("source_path", item.SourcePath),
			zap.String("output_path", outputPath),
			zap.String("output_size", humanize.Bytes(uint64(size))),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("encoder_output", command.Tail(output, 3)))
		return nil
	}
}
