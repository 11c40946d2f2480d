// Copyright (c) 2025 A Bit of Help, Inc.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/abitofhelp/mp3toogg/pkg/config"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/abitofhelp/mp3toogg/pkg/workitem"
)

// fakeToolchain keeps every file in memory. Sources are registered up front; the
// decoder and encoder create intermediate and output entries.
type fakeToolchain struct {
	mu sync.Mutex

	files        map[string]int64
	outputSizes  map[string]int64
	sourceOf     map[string]string
	failDecode   map[string]bool
	encodeDelay  time.Duration
	extractOrder []string
	decodeOrder  []string
	encodeCount  int
	decodeCount  int
	deleted      []string
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		files:       map[string]int64{},
		outputSizes: map[string]int64{},
		sourceOf:    map[string]string{},
		failDecode:  map[string]bool{},
	}
}

// addSource registers a source file and the size its encoded output will have
func (f *fakeToolchain) addSource(path string, size, outputSize int64) {
	f.files[path] = size
	f.outputSizes[path] = outputSize
}

func (f *fakeToolchain) ExtractMetadata(_ context.Context, path string) (workitem.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractOrder = append(f.extractOrder, path)
	return workitem.Metadata{Title: "title of " + path}, nil
}

func (f *fakeToolchain) DecodeToIntermediate(_ context.Context, sourcePath, destPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decodeOrder = append(f.decodeOrder, sourcePath)
	f.decodeCount++
	f.sourceOf[destPath] = sourcePath
	if f.failDecode[sourcePath] {
		// A partial intermediate file is left behind
		f.files[destPath] = 1
		return fmt.Errorf("%w: exit status 1", customErrors.ErrDecode)
	}
	f.files[destPath] = f.files[sourcePath] * 10
	return nil
}

func (f *fakeToolchain) EncodeFinal(_ context.Context, intermediatePath, destPath string, _ workitem.Metadata) ([]byte, error) {
	time.Sleep(f.encodeDelay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.encodeCount++
	if _, ok := f.files[intermediatePath]; !ok {
		return nil, fmt.Errorf("%w: no intermediate %s", customErrors.ErrEncode, intermediatePath)
	}
	f.files[destPath] = f.outputSizes[f.sourceOf[intermediatePath]]
	return []byte("encoded"), nil
}

func (f *fakeToolchain) DeletePath(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		return customErrors.Wrap(customErrors.ErrCleanup, &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist})
	}
	delete(f.files, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeToolchain) Stat(path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.files[path]
	if !ok {
		return 0, customErrors.Wrap(customErrors.ErrInvalidInput, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist})
	}
	return size, nil
}

// memorySink collects result lines
type memorySink struct {
	mu    sync.Mutex
	lines []string
}

func (m *memorySink) WriteLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
	return nil
}

func (m *memorySink) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// syncBuffer is the stdout shared by the monitor and the coordinator
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = "/music"
	cfg.TempDir = t.TempDir()
	cfg.LogPath = t.TempDir() + "/mp32ogg.log"
	cfg.MonitorInterval = config.Duration(2 * time.Millisecond)
	cfg.SoftCapPollInterval = config.Duration(time.Millisecond)
	return &cfg
}
