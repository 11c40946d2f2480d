// Copyright (c) 2025 A Bit of Help, Inc.

package deps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abitofhelp/mp3toogg/pkg/config"
	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBinaries(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	require.NoError(t, os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].Available)
	assert.Empty(t, results[0].Detail)

	assert.False(t, results[1].Available)
	assert.Contains(t, results[1].Detail, "not found")

	assert.False(t, results[2].Available)
	assert.Equal(t, "command not configured", results[2].Detail)

	err := Missing(results)
	assert.ErrorIs(t, err, customErrors.ErrToolMissing)
	assert.Contains(t, err.Error(), "Missing")
	assert.Contains(t, err.Error(), "Blank")
	assert.NotContains(t, err.Error(), "Present (")

	assert.NoError(t, Missing(results[:1]))
}

func TestRequirements(t *testing.T) {
	cfg := config.Default()
	reqs := Requirements(&cfg)
	require.Len(t, reqs, 3)
	assert.Equal(t, cfg.TagTool, reqs[0].Command)
	assert.Equal(t, cfg.Decoder, reqs[1].Command)
	assert.Equal(t, cfg.Encoder, reqs[2].Command)
}
