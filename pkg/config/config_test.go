package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidation(t *testing.T) {
	cfg := Default(t.TempDir())
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsMissingDir(t *testing.T) {
	cfg := Default("")
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPowerOfTwoPageSize(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.PageSize = 4000
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsGrowthRatioOfOne(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.GrowthRatio = 1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownCachePolicy(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.CachePolicy = "unknown"
	assert.Error(t, cfg.Validate())
}

func TestLoad_ParsesYAMLAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	yamlContent := `
dir: ` + dir + `
page_size: 4096
memtable_threshold: 500
growth_ratio: 10
buffer_pool_size: 256
cache_policy: clock
compress_pages: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, 4096, cfg.PageSize)
	assert.Equal(t, CacheClock, cfg.CachePolicy)
	assert.True(t, cfg.CompressPages)
}

func TestLoad_PropagatesValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: "+dir+"\npage_size: 100\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
