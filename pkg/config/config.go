// Package config defines the store's validated construction parameters:
// database directory, page size, memtable threshold, level growth ratio,
// buffer-pool sizing, and optional page compression. Grounded on the
// teacher's struct-tag validation pattern (pkg/validation/validator.go) and
// its YAML config loading (cmd/graphdb-upgrade/main.go).
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
	"github.com/kkli08/veloxdb/pkg/validation"
)

// CachePolicy names one of the three buffer-pool eviction policies a store
// can be configured with.
type CachePolicy string

const (
	CacheLRU    CachePolicy = "lru"
	CacheClock  CachePolicy = "clock"
	CacheRandom CachePolicy = "random"
)

// StoreConfig is the full set of parameters lsm.Open needs to start or
// reopen a store.
type StoreConfig struct {
	Dir               string      `yaml:"dir" validate:"required"`
	PageSize          int         `yaml:"page_size" validate:"required,min=512"`
	MemtableThreshold int         `yaml:"memtable_threshold" validate:"required,min=1"`
	GrowthRatio       int         `yaml:"growth_ratio" validate:"required,gt=1"`
	BufferPoolSize    int         `yaml:"buffer_pool_size" validate:"required,min=1"`
	CachePolicy       CachePolicy `yaml:"cache_policy" validate:"required,oneof=lru clock random"`
	CompressPages     bool        `yaml:"compress_pages"`
}

// Default returns a StoreConfig with the store's baseline parameters
// (4096-byte pages, LRU caching, no compression) for dir.
func Default(dir string) StoreConfig {
	return StoreConfig{
		Dir:               dir,
		PageSize:          4096,
		MemtableThreshold: 1000,
		GrowthRatio:       10,
		BufferPoolSize:    1024,
		CachePolicy:       CacheLRU,
		CompressPages:     false,
	}
}

// Validate runs struct-tag validation, then a page-size power-of-two check
// that validator tags alone can't express.
func (c StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if c.PageSize&(c.PageSize-1) != 0 {
		return storeerrors.New("config.Validate", "config", storeerrors.ErrInvalidArgument, "page size must be a power of two")
	}
	return nil
}

// Load reads and parses a YAML config file at path into a StoreConfig,
// then validates it. This is an ambient convenience, not a CLI — the
// store's entry point remains lsm.Open(StoreConfig).
func Load(path string) (StoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StoreConfig{}, storeerrors.New("config.Load", "file", storeerrors.ErrIo, err.Error())
	}

	var cfg StoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return StoreConfig{}, storeerrors.New("config.Load", "config", storeerrors.ErrInvalidArgument, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}
