// Copyright (c) 2025 A Bit of Help, Inc.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/abitofhelp/mp3toogg/pkg/command"
	"github.com/abitofhelp/mp3toogg/pkg/config"
	"github.com/abitofhelp/mp3toogg/pkg/deps"
	"github.com/abitofhelp/mp3toogg/pkg/logger"
	"github.com/abitofhelp/mp3toogg/pkg/pipeline"
	"github.com/abitofhelp/mp3toogg/pkg/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stand-ins for the tag reader, decoder and encoder. The encoder always writes
// 4000 bytes and records its arguments in $ENCODER_ARGS_LOG.
const (
	tagToolScript = `case "$1" in
*notags*) echo "id3tool: no tag found" ;;
*) printf 'Filename: %s\nSong Title:\tTrack of %s\nArtist:  The Testers\nAlbum:\nYear: 2008\nNote: ripped\n' "$1" "$(basename "$1")" ;;
esac`

	decoderScript = `pcmarg=${2#pcm:file=%}
dest=${pcmarg#*%}
case "$3" in
*corrupt*) echo "decoder: cannot parse stream" >&2; exit 1 ;;
esac
cat "$3" > "$dest"`

	encoderScript = `echo "$@" >> "$ENCODER_ARGS_LOG"
head -c 4000 /dev/zero > "$3"
echo "Done encoding file \"$3\""`
)

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

type integrationEnv struct {
	cfg     *config.Config
	srcDir  string
	argsLog string
}

func setupIntegration(t *testing.T) *integrationEnv {
	t.Helper()
	base := t.TempDir()
	bin := filepath.Join(base, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))

	cfg := config.Default()
	cfg.TagTool = writeTool(t, bin, "id3tool", tagToolScript)
	cfg.Decoder = writeTool(t, bin, "mplayer", decoderScript)
	cfg.Encoder = writeTool(t, bin, "oggenc", encoderScript)
	cfg.OutputDir = filepath.Join(base, "Music")
	cfg.TempDir = filepath.Join(base, "tmp")
	cfg.LogPath = filepath.Join(base, "mp32ogg.log")
	cfg.MonitorInterval = config.Duration(10 * time.Millisecond)
	cfg.SoftCapPollInterval = config.Duration(5 * time.Millisecond)
	cfg.ToolTimeout = config.Duration(10 * time.Second)
	require.NoError(t, os.MkdirAll(cfg.TempDir, 0o755))

	argsLog := filepath.Join(base, "encoder-args.log")
	t.Setenv("ENCODER_ARGS_LOG", argsLog)

	srcDir := filepath.Join(base, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))

	return &integrationEnv{cfg: &cfg, srcDir: srcDir, argsLog: argsLog}
}

func (e *integrationEnv) source(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(e.srcDir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xff}, size), 0o644))
	return path
}

func (e *integrationEnv) outputFor(source string) string {
	return filepath.Join(e.cfg.OutputDir, strings.TrimSuffix(source, ".mp3")+".ogg")
}

// TestIntegration_FullPipeline runs the real exec based toolchain end to end
func TestIntegration_FullPipeline(t *testing.T) {
	env := setupIntegration(t)
	log := logger.InitLogger(false)
	defer func() { logger.SafeSync(log) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, deps.Missing(deps.CheckBinaries(deps.Requirements(env.cfg))))

	first := env.source(t, "first.mp3", 5000)
	second := env.source(t, "second notags.MP3", 8000)
	missing := filepath.Join(env.srcDir, "missing.mp3")

	toolchain := transcode.New(env.cfg, command.ExecRunner{Timeout: env.cfg.ToolTimeout.Std()})
	var stdout bytes.Buffer
	runStats, err := pipeline.Run(ctx, log, env.cfg, toolchain, []string{first, missing, second}, &stdout)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), runStats.Converted.Load())
	assert.Equal(t, uint64(1), runStats.Rejected.Load())
	assert.Equal(t, uint64(0), runStats.Failed.Load())

	// Result log
	data, err := os.ReadFile(env.cfg.LogPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	sort.Strings(lines)
	assert.Equal(t, []string{
		fmt.Sprintf(`Converted "%s" to "%s" and gained 1000 (20.00%%)`, first, env.outputFor(first)),
		fmt.Sprintf(`Converted "%s" to "%s" and gained 4000 (50.00%%)`, second, filepath.Join(env.cfg.OutputDir, strings.TrimSuffix(second, ".MP3")+".ogg")),
	}, lines)

	// Outputs exist, intermediates are gone
	info, err := os.Stat(env.outputFor(first))
	require.NoError(t, err)
	assert.Equal(t, int64(4000), info.Size())
	leftovers, err := os.ReadDir(env.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	// Only present tags are passed to the encoder
	argsData, err := os.ReadFile(env.argsLog)
	require.NoError(t, err)
	args := string(argsData)
	assert.Contains(t, args, "-t Track of first.mp3 -a The Testers -d 2008 -c ripped")
	assert.NotContains(t, args, "-l ")
	for _, line := range strings.Split(strings.TrimSpace(args), "\n") {
		if strings.Contains(line, "notags") {
			assert.NotContains(t, line, " -t ")
		}
	}

	// Progress lines then Done
	out := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, "Done", out[len(out)-1])
	for _, line := range out[:len(out)-1] {
		assert.Len(t, strings.Split(line, "\t"), 4, "progress line %q", line)
	}
}

// TestIntegration_DecodeFailure keeps converting the batch when one file fails
func TestIntegration_DecodeFailure(t *testing.T) {
	env := setupIntegration(t)
	log := logger.InitLogger(false)
	defer func() { logger.SafeSync(log) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	good := env.source(t, "good.mp3", 5000)
	corrupt := env.source(t, "corrupt.mp3", 5000)

	env.cfg.EncoderWorkers = 1
	toolchain := transcode.New(env.cfg, command.ExecRunner{})
	runStats, err := pipeline.Run(ctx, log, env.cfg, toolchain, []string{corrupt, good}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), runStats.Converted.Load())
	assert.Equal(t, uint64(1), runStats.Failed.Load())

	data, err := os.ReadFile(env.cfg.LogPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"`+good+`"`)

	_, err = os.Stat(env.outputFor(corrupt))
	assert.True(t, os.IsNotExist(err))
}
