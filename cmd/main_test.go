package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/pkg/config"
)

func TestNewBackend_DefaultsToFileStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = "file"
	cfg.Store.Path = filepath.Join(t.TempDir(), "indexes")

	backend, err := newBackend(cfg)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	// The root directory is created eagerly so a later first write can't fail.
	assert.DirExists(t, cfg.Store.Path)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde…", truncate("abcdefgh", 5))
	assert.Equal(t, "héllo…", truncate("héllo wörld", 5))
}
