package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_AppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: postgres
  connection_string: postgres://localhost/kb
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 0.70, cfg.Chunker.SimilarityThreshold)
	assert.Equal(t, 30, cfg.Chunker.MaxChunkSentences)
	assert.Equal(t, 4, cfg.Loader.MaxParallelFiles)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not_a_real_field: true\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_ChunkerThresholdOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Chunker.SimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_MaxLessThanMinChunkSentences(t *testing.T) {
	cfg := Default()
	cfg.Chunker.MinChunkSentences = 10
	cfg.Chunker.MaxChunkSentences = 5
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ResultCacheEnabledRequiresPositiveSize(t *testing.T) {
	cfg := Default()
	cfg.Cache.ResultCacheEnabled = true
	cfg.Cache.ResultSize = 0
	assert.Error(t, cfg.Validate())
}

func TestDefault_ResultCacheSizeAndTTLAreNonZero(t *testing.T) {
	cfg := Default()
	assert.Greater(t, cfg.Cache.ResultSize, 0)
	assert.Greater(t, cfg.Cache.ResultTTLSeconds, 0)
}

func TestIsValidLogLevel(t *testing.T) {
	assert.True(t, IsValidLogLevel("INFO"))
	assert.True(t, IsValidLogLevel("warn"))
	assert.False(t, IsValidLogLevel("verbose"))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 0.75, PresetTechnicalDocs.SimilarityThreshold)
	assert.Equal(t, 40, PresetTechnicalDocs.MaxChunkSentences)
	assert.Equal(t, 0.65, PresetNarrative.SimilarityThreshold)
	assert.Equal(t, 20, PresetNarrative.MaxChunkSentences)
}
