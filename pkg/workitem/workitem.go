// Copyright (c) 2025 A Bit of Help, Inc.

// Package workitem defines the record that carries one source file through every
// pipeline stage.
package workitem

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Metadata is the best-effort tag record of a source file. Every field is optional;
// an empty string means the tag was absent.
type Metadata struct {
	Title   string
	Artist  string
	Album   string
	Track   string
	Year    string
	Genre   string
	Comment string
}

// IsEmpty reports whether no tag was found.
func (m Metadata) IsEmpty() bool {
	return m == Metadata{}
}

// StatFunc returns the size in bytes of the file at path.
type StatFunc func(path string) (int64, error)

var nextID atomic.Uint64

// WorkItem is mutated in place by each stage: fields are added, never removed.
// Only one stage worker holds an item at a time, so it needs no locking.
type WorkItem struct {
	// ID is unique within the process and orders items by acceptance
	ID uint64

	// SourcePath and SourceSize are fixed at construction
	SourcePath string
	SourceSize int64

	Metadata Metadata

	// IntermediatePath is assigned by the decode stage
	IntermediatePath string

	// OutputPath is assigned by the encode stage
	OutputPath string

	// OutputSize is valid only once Encoded is true
	OutputSize int64
	Encoded    bool

	// Err and FailedStage record the first per-item failure; later stages skip the item
	Err         error
	FailedStage string
}

// New accepts a source file, reading its size exactly once.
func New(path string, stat StatFunc) (*WorkItem, error) {
	size, err := stat(path)
	if err != nil {
		return nil, err
	}
	return &WorkItem{
		ID:         nextID.Add(1),
		SourcePath: path,
		SourceSize: size,
	}, nil
}

// Fail records a per-item failure. Only the first failure is kept.
func (w *WorkItem) Fail(stage string, err error) {
	if w.Err != nil || err == nil {
		return
	}
	w.Err = err
	w.FailedStage = stage
}

// Failed reports whether an earlier stage gave up on the item.
func (w *WorkItem) Failed() bool {
	return w.Err != nil
}

// SetOutput records the encoded artifact.
func (w *WorkItem) SetOutput(path string, size int64) {
	w.OutputPath = path
	w.OutputSize = size
	w.Encoded = true
}

// Gained returns the bytes saved by the conversion and the saving as a percentage of
// the source size. A zero-byte source reports 0%.
func (w *WorkItem) Gained() (int64, float64) {
	gained := w.SourceSize - w.OutputSize
	if w.SourceSize == 0 {
		return gained, 0
	}
	return gained, float64(gained) / float64(w.SourceSize) * 100
}

// String identifies the item in log messages.
func (w *WorkItem) String() string {
	return fmt.Sprintf("#%d %s", w.ID, w.SourcePath)
}

// OutputPathFor derives the converted file location: sourceExt is replaced by targetExt
// (case-insensitively; appended when the source has another extension) and the result
// is placed under outputDir.
func OutputPathFor(sourcePath, outputDir, sourceExt, targetExt string) string {
	name := sourcePath
	if ext := filepath.Ext(name); strings.EqualFold(ext, sourceExt) {
		name = strings.TrimSuffix(name, ext)
	}
	return filepath.Join(outputDir, name+targetExt)
}
