// Copyright (c) 2025 A Bit of Help, Inc.

// Package metadata extracts tags from source files.
//
// This package implements the core tag reading that can be used independently of the
// pipeline. The corresponding package in the pipeline hierarchy is pkg/pipeline/tagger,
// which integrates it into the metadata stage.
package metadata

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/abitofhelp/mp3toogg/pkg/command"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
)

// labels maps the tag tool's report labels (lower-cased) to record fields.
var labels = map[string]func(*workitem.Metadata, string){
	"song title": func(m *workitem.Metadata, v string) { m.Title = v },
	"artist":     func(m *workitem.Metadata, v string) { m.Artist = v },
	"album":      func(m *workitem.Metadata, v string) { m.Album = v },
	"track":      func(m *workitem.Metadata, v string) { m.Track = v },
	"year":       func(m *workitem.Metadata, v string) { m.Year = v },
	"genre":      func(m *workitem.Metadata, v string) { m.Genre = v },
	"note":       func(m *workitem.Metadata, v string) { m.Comment = v },
}

// Parse reads a tag report of "Label: value" lines. Unknown lines are ignored and empty
// values leave the field unset, so any input yields a usable record.
func Parse(report []byte) workitem.Metadata {
	var md workitem.Metadata
	scanner := bufio.NewScanner(bytes.NewReader(report))
	// A line may be as long as the whole report
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), max(len(report)+1, bufio.MaxScanTokenSize))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		set, known := labels[strings.ToLower(strings.TrimSpace(label))]
		if !known {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			set(&md, value)
		}
	}
	return md
}

// Extractor runs the tag tool on a file and parses what it prints.
type Extractor struct {
	Tool   string
	Runner command.Runner
}

// NewExtractor returns an Extractor for the given tag tool binary.
func NewExtractor(tool string, runner command.Runner) *Extractor {
	return &Extractor{Tool: tool, Runner: runner}
}

// Extract returns the best-effort tags of path. The record is always usable; a non-nil
// error only explains why it may be incomplete.
func (e *Extractor) Extract(ctx context.Context, path string) (workitem.Metadata, error) {
	output, err := e.Runner.Run(ctx, e.Tool, path)
	md := Parse(output)
	if err != nil {
		return md, customErrors.Wrap(customErrors.ErrMetadata, err)
	}
	return md, nil
}
