// Copyright (c) 2025 A Bit of Help, Inc.

// Package tempname selects fresh intermediate artifact paths.
package tempname

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds the generate-and-test loop.
const DefaultMaxAttempts = 64

// Generator builds names of the form <dir>/<source base>-<YYYYMMDD>-<pid>-<random>.
// The pid and random suffix keep names unique across concurrently running items and
// processes; the existence check guards against leftovers from earlier runs.
type Generator struct {
	Dir         string
	MaxAttempts int

	// Exists, Now, PID and Suffix are replaceable for tests
	Exists func(path string) (bool, error)
	Now    func() time.Time
	PID    int
	Suffix func() string
}

// NewGenerator returns a Generator writing into dir.
func NewGenerator(dir string) *Generator {
	return &Generator{
		Dir:         dir,
		MaxAttempts: DefaultMaxAttempts,
		Exists:      PathExists,
		Now:         time.Now,
		PID:         os.Getpid(),
		Suffix:      RandomSuffix,
	}
}

// Next returns a path that did not exist when it was checked.
func (g *Generator) Next(sourcePath string) (string, error) {
	base := filepath.Base(sourcePath)
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		candidate := filepath.Join(g.Dir, fmt.Sprintf("%s-%s-%d-%s",
			base, g.Now().Format("20060102"), g.PID, g.Suffix()))
		exists, err := g.Exists(candidate)
		if err != nil {
			return "", customErrors.Wrap(customErrors.ErrIOFailure, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %d candidates for %s already exist in %s",
		customErrors.ErrPathExhausted, attempts, base, g.Dir)
}

// PathExists reports whether any filesystem entry exists at path, dangling symlinks included.
func PathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// RandomSuffix returns 12 random hex characters.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
