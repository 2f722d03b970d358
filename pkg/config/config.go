// Package config loads VecStream's runtime configuration from environment
// variables, plus an optional vecstream.yaml override file.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables:
//   - VECSTREAM_DB_PATH: root directory for collections (default OS-specific)
//   - VECSTREAM_HNSW_M: neighbors per node per layer (default 16)
//   - VECSTREAM_HNSW_EF_CONSTRUCTION: construction candidate pool size (default 200)
//   - VECSTREAM_HNSW_EF_SEARCH: search candidate pool size (default 50)
//   - VECSTREAM_REBUILD_THRESHOLD: deleted-fraction that triggers a rebuild (default 0.25)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/torinriley/vecstream/pkg/hnsw"
)

// Config holds VecStream's runtime settings.
type Config struct {
	DBPath           string
	HNSW             hnsw.Config
	RebuildThreshold float64
}

// LoadFromEnv builds a Config from environment variables, falling back to
// defaults for anything unset. If a vecstream.yaml file exists in the
// current working directory, its non-zero values override the
// environment-derived ones; no other location is searched.
func LoadFromEnv() Config {
	cfg := Config{
		DBPath: getEnv("VECSTREAM_DB_PATH", defaultDBPath()),
		HNSW: hnsw.Config{
			M:              getEnvInt("VECSTREAM_HNSW_M", 16),
			EfConstruction: getEnvInt("VECSTREAM_HNSW_EF_CONSTRUCTION", 200),
			EfSearch:       getEnvInt("VECSTREAM_HNSW_EF_SEARCH", 50),
			Seed:           int64(getEnvInt("VECSTREAM_HNSW_SEED", 1)),
		},
		RebuildThreshold: getEnvFloat("VECSTREAM_REBUILD_THRESHOLD", 0.25),
	}

	if overrides, err := loadYAMLOverrides("vecstream.yaml"); err == nil {
		applyOverrides(&cfg, overrides)
	}

	return cfg
}

// Validate checks that the loaded configuration is internally consistent.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("vecstream: db path must not be empty")
	}
	if c.HNSW.M <= 0 {
		return fmt.Errorf("vecstream: hnsw.m must be positive, got %d", c.HNSW.M)
	}
	if c.HNSW.EfConstruction <= 0 {
		return fmt.Errorf("vecstream: hnsw.ef_construction must be positive, got %d", c.HNSW.EfConstruction)
	}
	if c.HNSW.EfSearch <= 0 {
		return fmt.Errorf("vecstream: hnsw.ef_search must be positive, got %d", c.HNSW.EfSearch)
	}
	if c.RebuildThreshold <= 0 || c.RebuildThreshold > 1 {
		return fmt.Errorf("vecstream: rebuild_threshold must be in (0, 1], got %f", c.RebuildThreshold)
	}
	return nil
}

// defaultDBPath mirrors the platform convention VecStream documents: an
// APPDATA-rooted directory on Windows, a dotfile under the home directory
// everywhere else.
func defaultDBPath() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "VecStream", "store")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".vecstream", "store")
	}
	return filepath.Join(home, ".vecstream", "store")
}

// yamlOverrides is the shape of an optional vecstream.yaml file.
type yamlOverrides struct {
	DBPath           string `yaml:"db_path"`
	RebuildThreshold float64 `yaml:"rebuild_threshold"`
	HNSW             struct {
		M              int `yaml:"m"`
		EfConstruction int `yaml:"ef_construction"`
		EfSearch       int `yaml:"ef_search"`
	} `yaml:"hnsw"`
}

func loadYAMLOverrides(path string) (yamlOverrides, error) {
	var out yamlOverrides
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("vecstream: parse %s: %w", path, err)
	}
	return out, nil
}

func applyOverrides(cfg *Config, o yamlOverrides) {
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.RebuildThreshold != 0 {
		cfg.RebuildThreshold = o.RebuildThreshold
	}
	if o.HNSW.M != 0 {
		cfg.HNSW.M = o.HNSW.M
	}
	if o.HNSW.EfConstruction != 0 {
		cfg.HNSW.EfConstruction = o.HNSW.EfConstruction
	}
	if o.HNSW.EfSearch != 0 {
		cfg.HNSW.EfSearch = o.HNSW.EfSearch
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
