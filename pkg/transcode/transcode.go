// Copyright (c) 2025 A Bit of Help, Inc.

// Package transcode drives the external decoder and encoder.
//
// This package implements the core conversion steps that can be used independently of
// the pipeline. The stage packages in /pkg/pipeline (decoder, encoder, writer) call it
// through the pipeline.Toolchain interface.
package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abitofhelp/mp3toogg/pkg/command"
	"github.com/abitofhelp/mp3toogg/pkg/config"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/metadata"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
	"github.com/samber/lo"
)

// diagnosticLines is how much tool output is kept in error messages
const diagnosticLines = 5

// Toolchain is the production implementation of the pipeline's external collaborators.
type Toolchain struct {
	Tags    *metadata.Extractor
	Decoder string
	Encoder string
	Runner  command.Runner
}

// New builds a Toolchain from the configured binaries.
func New(cfg *config.Config, runner command.Runner) *Toolchain {
	return &Toolchain{
		Tags:    metadata.NewExtractor(cfg.TagTool, runner),
		Decoder: cfg.Decoder,
		Encoder: cfg.Encoder,
		Runner:  runner,
	}
}

// ExtractMetadata returns the best-effort tags of path.
func (t *Toolchain) ExtractMetadata(ctx context.Context, path string) (workitem.Metadata, error) {
	return t.Tags.Extract(ctx, path)
}

// DecodeArgs builds the decoder command line. The file option carries the destination's
// length so the decoder reads the path verbatim whatever characters it contains.
func DecodeArgs(sourcePath, destPath string) []string {
	return []string{
		"-ao", fmt.Sprintf("pcm:file=%%%d%%%s", len(destPath), destPath),
		sourcePath,
	}
}

// DecodeToIntermediate decodes sourcePath into the PCM file destPath.
func (t *Toolchain) DecodeToIntermediate(ctx context.Context, sourcePath, destPath string) error {
	output, err := t.Runner.Run(ctx, t.Decoder, DecodeArgs(sourcePath, destPath)...)
	if err != nil {
		return customErrors.Wrap(customErrors.ErrDecode,
			fmt.Errorf("%w\n%s", err, command.Tail(output, diagnosticLines)))
	}
	if _, err := os.Stat(destPath); err != nil {
		return customErrors.Wrap(customErrors.ErrDecode,
			fmt.Errorf("decoder produced no intermediate file: %w", err))
	}
	return nil
}

// EncodeArgs builds the encoder command line. Only tags that are present become options.
func EncodeArgs(intermediatePath, destPath string, md workitem.Metadata) []string {
	tags := []lo.Tuple2[string, string]{
		lo.T2("-t", md.Title),
		lo.T2("-a", md.Artist),
		lo.T2("-l", md.Album),
		lo.T2("-N", md.Track),
		lo.T2("-d", md.Year),
		lo.T2("-G", md.Genre),
		lo.T2("-c", md.Comment),
	}
	present := lo.Filter(tags, func(tag lo.Tuple2[string, string], _ int) bool {
		return tag.B != ""
	})
	options := lo.FlatMap(present, func(tag lo.Tuple2[string, string], _ int) []string {
		return []string{tag.A, tag.B}
	})
	return append([]string{intermediatePath, "-o", destPath}, options...)
}

// EncodeFinal encodes the intermediate file into destPath, creating its directory.
// It returns the encoder's combined output for diagnostics and fails when the
// encoder errors or leaves no output file behind.
func (t *Toolchain) EncodeFinal(ctx context.Context, intermediatePath, destPath string, md workitem.Metadata) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, customErrors.Wrap(customErrors.ErrIOFailure, err)
	}

	output, err := t.Runner.Run(ctx, t.Encoder, EncodeArgs(intermediatePath, destPath, md)...)
	if err != nil {
		return output, customErrors.Wrap(customErrors.ErrEncode,
			fmt.Errorf("%w\n%s", err, command.Tail(output, diagnosticLines)))
	}
	if _, err := os.Stat(destPath); err != nil {
		return output, customErrors.Wrap(customErrors.ErrOutputMissing, err)
	}
	return output, nil
}

// DeletePath removes path; a missing path is an error.
func (t *Toolchain) DeletePath(path string) error {
	if err := os.Remove(path); err != nil {
		return customErrors.Wrap(customErrors.ErrCleanup, err)
	}
	return nil
}

// Stat returns the size of the regular file at path.
func (t *Toolchain) Stat(path string) (int64, error) {
	return StatSize(path)
}

// StatSize returns the size of the regular file at path.
func StatSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, customErrors.Wrap(customErrors.ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", customErrors.ErrInvalidInput, path)
	}
	return info.Size(), nil
}
