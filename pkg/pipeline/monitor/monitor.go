// Copyright (c) 2025 A Bit of Help, Inc.

// Package monitor reports pipeline queue depths while a run is in progress.
package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Depther is any queue whose current length can be sampled
type Depther interface {
	Name() string
	Depth() int
}

// Monitor prints one line of tab separated queue depths per interval
type Monitor struct {
	out      io.Writer
	logger   *zap.Logger
	interval time.Duration
	queues   []Depther
}

// New returns a Monitor sampling queues in the given order
func New(out io.Writer, logger *zap.Logger, interval time.Duration, queues ...Depther) *Monitor {
	return &Monitor{
		out:      out,
		logger:   logger,
		interval: interval,
		queues:   queues,
	}
}

// Sample returns the current depth of every queue
func (m *Monitor) Sample() []int {
	return lo.Map(m.queues, func(q Depther, _ int) int { return q.Depth() })
}

// FormatLine renders depths the way the monitor prints them
func FormatLine(depths []int) string {
	return strings.Join(lo.Map(depths, func(d int, _ int) string { return fmt.Sprint(d) }), "\t")
}

// Run prints a line immediately and then once per interval until ctx is done.
// Cancellation is checked before every sample, so no line is printed after it.
func (m *Monitor) Run(ctx context.Context) {
	defer m.logger.Debug("Monitor goroutine completed")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		depths := m.Sample()
		if _, err := fmt.Fprintln(m.out, FormatLine(depths)); err != nil {
			m.logger.Warn("Failed to write progress line", zap.Error(err))
		}
		m.logger.Debug("Queue depths",
			zap.Ints("queue_depths", depths),
			zap.Strings("queues", lo.Map(m.queues, func(q Depther, _ int) string { return q.Name() })))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
