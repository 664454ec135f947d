package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryDefaults(t *testing.T) {
	registry, err := LoadRegistry("")
	require.NoError(t, err)

	for _, family := range []ModelFamily{FamilyImaging, FamilyGenomic, FamilyMultimodal} {
		cfg, ok := registry.Models[family]
		require.True(t, ok)
		assert.Empty(t, cfg.Weights)
	}
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := "models:\n  imaging:\n    weights: imaging/v3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	registry, err := LoadRegistry(path)
	require.NoError(t, err)

	assert.Equal(t, "imaging/v3", registry.Models[FamilyImaging].Weights)
	// unmentioned families fall back to built-in weights
	assert.Empty(t, registry.Models[FamilyGenomic].Weights)
	assert.Empty(t, registry.Models[FamilyMultimodal].Weights)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestModelCacheLoadsOnceAndReleases(t *testing.T) {
	cache := NewModelCache(DefaultRegistry(), nil, "", t.TempDir())
	defer cache.Release()

	first, err := cache.Get(context.Background(), FamilyGenomic)
	require.NoError(t, err)

	second, err := cache.Get(context.Background(), FamilyGenomic)
	require.NoError(t, err)
	assert.Same(t, first, second)

	cache.Release()
	third, err := cache.Get(context.Background(), FamilyGenomic)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}
