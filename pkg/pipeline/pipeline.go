// Copyright (c) 2025 A Bit of Help, Inc.

// Package pipeline provides the conversion pipeline coordinator.
// Source files flow through four stages connected by queues:
//
//  1. tagger reads the tags of each file (one worker)
//  2. decoder writes an intermediate PCM file, pausing while the encode queue is
//     at its soft cap (one worker)
//  3. encoder produces the target file (a pool of workers)
//  4. writer removes the intermediate file and appends a result line (one worker)
//
// Stage packages in /pkg/pipeline integrate the external tool wrappers from /pkg
// (metadata, transcode) into the pipeline, handling queue communication, concurrency
// and per-item error handling through the shared processor package.
//
// Shutdown follows the stage dependencies: each queue receives its shutdown messages
// only after every producer feeding it has returned, so no in-flight item is dropped.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/abitofhelp/mp3toogg/pkg/config"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/decoder"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/encoder"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/monitor"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/reader"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/tagger"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline/writer"
	"github.com/abitofhelp/mp3toogg/pkg/queue"
	"github.com/abitofhelp/mp3toogg/pkg/resultlog"
	"github.com/abitofhelp/mp3toogg/pkg/stats"
	"github.com/abitofhelp/mp3toogg/pkg/tempname"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DoneLine is printed on stdout once every stage has drained
const DoneLine = "Done"

// Toolchain is every external collaborator the stages need
type Toolchain interface {
	tagger.MetadataExtractor
	decoder.Decoder
	encoder.Encoder
	writer.Remover
}

// Run opens the result log at cfg.LogPath and converts paths. Per-item failures are
// logged and counted in the returned statistics; the error is non-nil only when the
// run itself could not be set up or was canceled.
func Run(ctx context.Context, logger *zap.Logger, cfg *config.Config, toolchain Toolchain, paths []string, stdout io.Writer) (*stats.Stats, error) {
	if err := validateInputs(ctx, logger, cfg, toolchain); err != nil {
		return nil, err
	}

	if stdout == nil {
		return nil, wrapPipelineError(fmt.Errorf("%w: stdout is required", customErrors.ErrInvalidInput), "validate_inputs", "")
	}

	sink, err := resultlog.Open(cfg.LogPath)
	if err != nil {
		logger.Error("Failed to open result log", zap.String("path", cfg.LogPath), zap.Error(err))
		return nil, wrapPipelineError(err, "open_result_log", cfg.LogPath)
	}
	logger.Debug("Result log opened", zap.String("path", sink.Path()))
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("Failed to close result log", zap.String("path", sink.Path()), zap.Error(err))
		}
	}()

	return newCoordinator(logger, cfg, toolchain, sink, stdout).Run(ctx, paths)
}

// Coordinator owns the queues of one run and drives the stages over them
type Coordinator struct {
	logger    *zap.Logger
	cfg       *config.Config
	toolchain Toolchain
	sink      writer.LineWriter
	names     decoder.PathGenerator
	stdout    io.Writer

	queues    pipelineQueues
	stats     *stats.Stats
	collector *customErrors.ErrorCollector
}

type pipelineQueues struct {
	files   *queue.BoundedQueue[*workitem.WorkItem]
	tagged  *queue.BoundedQueue[*workitem.WorkItem]
	decoded *queue.BoundedQueue[*workitem.WorkItem]
	encoded *queue.BoundedQueue[*workitem.WorkItem]
}

func (q pipelineQueues) all() []*queue.BoundedQueue[*workitem.WorkItem] {
	return []*queue.BoundedQueue[*workitem.WorkItem]{q.files, q.tagged, q.decoded, q.encoded}
}

// NewCoordinator prepares a run writing result lines to sink and progress to stdout
func NewCoordinator(logger *zap.Logger, cfg *config.Config, toolchain Toolchain, sink writer.LineWriter, stdout io.Writer) (*Coordinator, error) {
	if err := validateInputs(context.Background(), logger, cfg, toolchain); err != nil {
		return nil, err
	}
	if sink == nil || stdout == nil {
		return nil, customErrors.NewPipelineError(fmt.Errorf("%w: result sink and stdout are required", customErrors.ErrInvalidInput),
			"pipeline", 0, "validate_inputs", "")
	}
	return newCoordinator(logger, cfg, toolchain, sink, stdout), nil
}

// newCoordinator assumes its arguments were validated
func newCoordinator(logger *zap.Logger, cfg *config.Config, toolchain Toolchain, sink writer.LineWriter, stdout io.Writer) *Coordinator {
	return &Coordinator{
		logger:    logger,
		cfg:       cfg,
		toolchain: toolchain,
		sink:      sink,
		names:     tempname.NewGenerator(cfg.TempDir),
		stdout:    stdout,
		queues:    setupQueues(cfg),
		stats:     stats.NewStats(),
		collector: customErrors.NewErrorCollector(),
	}
}

func setupQueues(cfg *config.Config) pipelineQueues {
	return pipelineQueues{
		files:   queue.New[*workitem.WorkItem]("files", cfg.QueueCapacity),
		tagged:  queue.New[*workitem.WorkItem]("tagged", cfg.QueueCapacity),
		decoded: queue.New[*workitem.WorkItem]("decoded", queue.Unbounded),
		encoded: queue.New[*workitem.WorkItem]("encoded", cfg.QueueCapacity),
	}
}

// Depths samples the four queues in stage order
func (c *Coordinator) Depths() []int {
	return lo.Map(c.queues.all(), func(q *queue.BoundedQueue[*workitem.WorkItem], _ int) int {
		return q.Depth()
	})
}

// Errors returns the per-item failures of the run so far
func (c *Coordinator) Errors() []error {
	return c.collector.Errors()
}

// Run converts paths. A Coordinator runs once.
func (c *Coordinator) Run(ctx context.Context, paths []string) (*stats.Stats, error) {
	if err := checkContext(ctx); err != nil {
		logContextError(c.logger, err)
		return nil, wrapPipelineError(err, "check_context", "")
	}

	startTime := time.Now()
	c.logger.Info("Starting conversion run",
		zap.String("run_id", c.stats.RunID),
		zap.Int("files", len(paths)),
		zap.Int("encoder_workers", c.cfg.EncoderWorkers),
		zap.Int("decode_soft_cap", c.cfg.DecodeSoftCap),
		zap.String("output_dir", c.cfg.OutputDir))

	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	defer cancelPipeline()

	stopMonitor := c.startMonitor(pipelineCtx)

	stageErrs := customErrors.NewErrorCollector()
	if err := c.runStages(pipelineCtx, cancelPipeline, paths, stageErrs); err != nil {
		stopMonitor()
		return nil, wrapPipelineError(err, "start_stages", "")
	}

	// The monitor must not print after the final line
	stopMonitor()

	c.stats.ProcessingTime = time.Since(startTime)

	if err := checkFinalContext(ctx, startTime, c.logger, stageErrs); err != nil {
		return c.stats, err
	}

	if c.collector.HasErrors() {
		c.logger.Warn("Some files were not converted",
			zap.Int("failures", c.collector.Len()),
			zap.Error(c.collector.Combined()))
	}

	if _, err := fmt.Fprintln(c.stdout, DoneLine); err != nil {
		c.logger.Warn("Failed to write completion line", zap.Error(err))
	}
	return c.stats, nil
}

// runStages launches every stage and shuts them down in dependency order
func (c *Coordinator) runStages(ctx context.Context, cancel context.CancelFunc, paths []string, stageErrs *customErrors.ErrorCollector) error {
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		_, err := reader.Stage(ctx, c.logger, paths, c.toolchain.Stat, c.queues.files, c.stats, c.collector)
		stageErrs.Add(err)
	}()

	taggerDone := c.startStage(func() error {
		return tagger.Stage(ctx, c.logger, c.queues.files, c.queues.tagged, c.toolchain, c.stats, c.collector)
	})

	decoderDone := c.startStage(func() error {
		return decoder.Stage(ctx, c.logger, c.queues.tagged, c.queues.decoded, c.toolchain, c.names,
			decoder.Throttle{SoftCap: c.cfg.DecodeSoftCap, PollInterval: c.cfg.SoftCapPollInterval.Std()},
			c.stats, c.collector)
	})

	pool, err := encoder.Start(ctx, c.logger, c.cfg.EncoderWorkers, c.queues.decoded, c.queues.encoded, c.toolchain,
		encoder.OutputLayout{Dir: c.cfg.OutputDir, SourceExt: c.cfg.SourceExt, TargetExt: c.cfg.TargetExt},
		c.stats, c.collector)
	if err != nil {
		// Stop the stages already running
		cancel()
		readerWg.Wait()
		<-taggerDone
		<-decoderDone
		return err
	}

	writerDone := c.startStage(func() error {
		return writer.Stage(ctx, c.logger, c.queues.encoded, c.toolchain, c.sink, c.stats, c.collector)
	})

	readerWg.Wait()

	stageErrs.Add(<-taggerDone)
	c.logger.Debug("Tagger stage completed")

	stageErrs.Add(<-decoderDone)
	c.logger.Debug("Decoder stage completed")

	for i := 0; i < pool.Workers(); i++ {
		stageErrs.Add(c.queues.decoded.EnqueueShutdown(ctx))
	}
	stageErrs.Add(pool.Wait())
	c.logger.Debug("Encoder stage completed", zap.Int("workers", pool.Workers()))

	stageErrs.Add(c.queues.encoded.EnqueueShutdown(ctx))
	stageErrs.Add(<-writerDone)
	c.logger.Debug("Writer stage completed", zap.Ints("queue_depths", c.Depths()))
	return nil
}

func (c *Coordinator) startStage(stage func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- stage()
	}()
	return done
}

func (c *Coordinator) startMonitor(ctx context.Context) func() {
	monitorCtx, cancel := context.WithCancel(ctx)
	m := monitor.New(c.stdout, c.logger, c.cfg.MonitorInterval.Std(),
		c.queues.files, c.queues.tagged, c.queues.decoded, c.queues.encoded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Run(monitorCtx)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func validateInputs(ctx context.Context, logger *zap.Logger, cfg *config.Config, toolchain Toolchain) error {
	if ctx == nil {
		return customErrors.NewPipelineError(fmt.Errorf("context cannot be nil"), "pipeline", 0, "validate_inputs", "")
	}
	if logger == nil {
		return customErrors.NewPipelineError(fmt.Errorf("logger cannot be nil"), "pipeline", 0, "validate_inputs", "")
	}
	if cfg == nil {
		return customErrors.NewPipelineError(fmt.Errorf("config cannot be nil"), "pipeline", 0, "validate_inputs", "")
	}
	if toolchain == nil {
		return customErrors.NewPipelineError(fmt.Errorf("toolchain cannot be nil"), "pipeline", 0, "validate_inputs", "")
	}
	if err := cfg.Validate(); err != nil {
		return customErrors.NewPipelineError(err, "pipeline", 0, "validate_inputs", "")
	}
	return nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// logContextError logs context-related errors
func logContextError(logger *zap.Logger, err error) {
	if customErrors.IsTimeoutError(err) {
		logger.Error("Pipeline timed out", zap.Error(err))
	} else {
		logger.Warn("Pipeline canceled by parent context", zap.Error(err))
	}
}

// checkFinalContext reports a run that was canceled before it drained
func checkFinalContext(ctx context.Context, startTime time.Time, logger *zap.Logger, stageErrs *customErrors.ErrorCollector) error {
	err := checkContext(ctx)
	if err == nil && stageErrs.HasErrors() {
		err = stageErrs.Combined()
	}
	if err == nil {
		return nil
	}

	logger.Error("Pipeline stopped before completion",
		zap.Error(err),
		zap.Duration("elapsed_time", time.Since(startTime)))

	switch {
	case customErrors.IsTimeoutError(err):
		err = customErrors.Wrap(customErrors.ErrTimeout, err)
	case customErrors.IsCancellationError(err):
		err = customErrors.Wrap(customErrors.ErrCanceled, err)
	}
	return wrapPipelineError(err, "finalize", "")
}

func wrapPipelineError(err error, operation, path string) error {
	return customErrors.NewPipelineError(err, "pipeline", 0, operation, path)
}
