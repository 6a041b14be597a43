package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whiteroom-io/whiteroom/pkg/config"
)

func TestBuildStoreSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "snapshots.db")

	s, err := buildStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestBuildStoreSQLiteRejectsEmptyPath(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = ""

	_, err := buildStore(cfg)
	require.Error(t, err)
}

func TestBuildStoreMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "memory"

	s, err := buildStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestBuildStoreUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "bolt"

	_, err := buildStore(cfg)
	require.Error(t, err)
}
