// Copyright (c) 2025 A Bit of Help, Inc.

package tempname

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(values ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v
	}
}

func fixedGenerator(dir string, suffix func() string) *Generator {
	g := NewGenerator(dir)
	g.Now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) }
	g.PID = 4242
	g.Suffix = suffix
	return g
}

func TestNext_Format(t *testing.T) {
	dir := t.TempDir()
	g := fixedGenerator(dir, sequence("abc123"))

	path, err := g.Next("/music/in/song.mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "song.mp3-20261017-4242-abc123"), path)
}

func TestNext_SkipsExistingEntries(t *testing.T) {
	dir := t.TempDir()
	g := fixedGenerator(dir, sequence("s0", "s1", "s2", "s3"))

	// Pre-populate the first three candidates: a file, a directory and a dangling symlink.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3-20261017-4242-s0"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a.mp3-20261017-4242-s1"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "a.mp3-20261017-4242-s2")))

	path, err := g.Next("a.mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.mp3-20261017-4242-s3"), path)

	exists, err := PathExists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNext_NeverReturnsPrepopulatedName(t *testing.T) {
	dir := t.TempDir()
	suffixes := make([]string, 32)
	for i := range suffixes {
		suffixes[i] = fmt.Sprintf("%02d", i)
	}
	g := fixedGenerator(dir, sequence(suffixes...))
	g.MaxAttempts = len(suffixes)

	// Every candidate except one random position is taken.
	for round := 0; round < 8; round++ {
		free := (round * 7) % len(suffixes)
		sub := filepath.Join(dir, fmt.Sprintf("round%d", round))
		require.NoError(t, os.Mkdir(sub, 0o755))
		g.Dir = sub
		g.Suffix = sequence(suffixes...)
		for i, s := range suffixes {
			if i != free {
				require.NoError(t, os.WriteFile(filepath.Join(sub, "x.mp3-20261017-4242-"+s), nil, 0o644))
			}
		}

		path, err := g.Next("x.mp3")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(sub, "x.mp3-20261017-4242-"+suffixes[free]), path)
	}
}

func TestNext_Exhausted(t *testing.T) {
	g := fixedGenerator(t.TempDir(), sequence("same"))
	g.MaxAttempts = 3
	g.Exists = func(string) (bool, error) { return true, nil }

	_, err := g.Next("a.mp3")
	assert.ErrorIs(t, err, customErrors.ErrPathExhausted)
}

func TestNext_ExistsError(t *testing.T) {
	g := fixedGenerator(t.TempDir(), sequence("x"))
	g.Exists = func(string) (bool, error) { return false, errors.New("permission denied") }

	_, err := g.Next("a.mp3")
	assert.True(t, customErrors.IsIOError(err))
}

func TestNext_DefaultsAreUniqueAcrossGoroutines(t *testing.T) {
	g := NewGenerator(t.TempDir())

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := g.Next("same.mp3")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[path] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestRandomSuffix(t *testing.T) {
	s := RandomSuffix()
	assert.Len(t, s, 12)
	assert.False(t, strings.Contains(s, "-"))
	assert.NotEqual(t, s, RandomSuffix())
}
