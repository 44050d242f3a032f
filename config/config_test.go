package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/viant/kpdg/config"
)

func TestLoadParsesYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kpdg.yaml")
	content := "module: ./testmodule\n" +
		"boundaryDir: ./boundary\n" +
		"out: ./out\n" +
		"sharedData: true\n" +
		"patterns:\n  - ./...\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "./testmodule", cfg.Module)
	require.Equal(t, "./boundary", cfg.BoundaryDir)
	require.Equal(t, "./out", cfg.Out)
	require.True(t, cfg.SharedData)
	require.Equal(t, []string{"./..."}, cfg.Patterns)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
