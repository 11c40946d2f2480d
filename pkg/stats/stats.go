// Copyright (c) 2025 A Bit of Help, Inc.

// Package stats provides functionality for tracking pipeline processing statistics
package stats

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

// Stats tracks run statistics with thread-safe access methods
type Stats struct {
	// RunID identifies the run in logs
	RunID string

	// Item counts per outcome
	Accepted  atomic.Uint64
	Rejected  atomic.Uint64
	Tagged    atomic.Uint64
	Decoded   atomic.Uint64
	Encoded   atomic.Uint64
	Converted atomic.Uint64
	Failed    atomic.Uint64

	// Byte totals over converted items only
	SourceBytes atomic.Int64
	OutputBytes atomic.Int64

	// Performance metrics
	ProcessingTime time.Duration
}

// NewStats creates a new Stats instance with a fresh run id
func NewStats() *Stats {
	return &Stats{RunID: uuid.NewString()}
}

// RecordAccepted counts a source file that entered the pipeline
func (s *Stats) RecordAccepted() {
	s.Accepted.Add(1)
}

// RecordRejected counts a source file excluded by input validation
func (s *Stats) RecordRejected() {
	s.Rejected.Add(1)
}

// IncrementTagged counts an item leaving the metadata stage
func (s *Stats) IncrementTagged() {
	s.Tagged.Add(1)
}

// IncrementDecoded counts an item that produced an intermediate artifact
func (s *Stats) IncrementDecoded() {
	s.Decoded.Add(1)
}

// IncrementEncoded counts an item that produced its output file
func (s *Stats) IncrementEncoded() {
	s.Encoded.Add(1)
}

// RecordConverted counts a finished item and its sizes
func (s *Stats) RecordConverted(sourceBytes, outputBytes int64) {
	s.Converted.Add(1)
	s.SourceBytes.Add(sourceBytes)
	s.OutputBytes.Add(outputBytes)
}

// RecordFailed counts an item that did not produce a result line
func (s *Stats) RecordFailed() {
	s.Failed.Add(1)
}

// Gained returns the bytes saved over all converted items and the saving as a
// percentage of their source size
func (s *Stats) Gained() (int64, float64) {
	source := s.SourceBytes.Load()
	gained := source - s.OutputBytes.Load()
	if source == 0 {
		return gained, 0
	}
	return gained, float64(gained) / float64(source) * 100
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds %dms", hours, minutes, seconds, milliseconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds %dms", minutes, seconds, milliseconds)
	} else if seconds > 0 {
		return fmt.Sprintf("%ds %dms", seconds, milliseconds)
	}
	return fmt.Sprintf("%dms", milliseconds)
}

// FormatBytes renders a signed byte count, e.g. "-1.2 MB"
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// DisplaySummary renders a summary table to w and logs the same figures
func (s *Stats) DisplaySummary(w io.Writer, logger *zap.Logger) {
	timeFormatted := FormatDuration(s.ProcessingTime)
	gained, percent := s.Gained()

	accepted := s.Accepted.Load()
	rejected := s.Rejected.Load()
	converted := s.Converted.Load()
	failed := s.Failed.Load()
	sourceBytes := s.SourceBytes.Load()
	outputBytes := s.OutputBytes.Load()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Conversion Summary")
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Files accepted", accepted},
		{"Files rejected", rejected},
		{"Files converted", converted},
		{"Files failed", failed},
	})
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Source bytes", fmt.Sprintf("%s (%d bytes)", FormatBytes(sourceBytes), sourceBytes)},
		{"Output bytes", fmt.Sprintf("%s (%d bytes)", FormatBytes(outputBytes), outputBytes)},
		{"Gained", fmt.Sprintf("%s (%.2f%%)", FormatBytes(gained), percent)},
	})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Processing time", timeFormatted})
	tw.SetStyle(table.StyleLight)
	tw.Render()

	logger.Info("Conversion run completed",
		zap.String("run_id", s.RunID),
		zap.Uint64("accepted", accepted),
		zap.Uint64("rejected", rejected),
		zap.Uint64("tagged", s.Tagged.Load()),
		zap.Uint64("decoded", s.Decoded.Load()),
		zap.Uint64("encoded", s.Encoded.Load()),
		zap.Uint64("converted", converted),
		zap.Uint64("failed", failed),
		zap.Int64("source_bytes", sourceBytes),
		zap.Int64("output_bytes", outputBytes),
		zap.Int64("gained_bytes", gained),
		zap.Float64("gained_percent", percent),
		zap.Duration("processing_time", s.ProcessingTime),
		zap.String("formatted_processing_time", timeFormatted))
}
