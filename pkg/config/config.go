// Package config loads layered configuration for the discocore tree
// and MIF index: compiled-in defaults, overridable by environment
// variables, validated before use.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// Config aggregates every subsystem's settings.
type Config struct {
	Tree    TreeConfig
	MIF     MIFConfig
	Cache   CacheConfig
	Storage StorageConfig
}

// TreeConfig holds k-d tree defaults.
type TreeConfig struct {
	Decomposition string // "orthogonal" or "hyperplane" (default: "orthogonal")
	Pivot         string // "mean", "middle", or "median" (default: "mean")
	Sort          bool   // maintain sorted result order (default: true)
	GivenHeight   int    // 0 lets the tree derive height from object count
	Weighted      bool   // use sigma-weighted distance by default
}

// MIFConfig holds Metric Inverted File defaults. Numref/Ki/Ks are
// formula-derived from the object count M when left at zero:
// numref = 2*sqrt(M), ki = numref/4, ks = numref/4, mpd = 5.
type MIFConfig struct {
	Numref int
	Ki     int
	Ks     int
	Mpd    int
	Seed   int64
}

// DefaultNumref computes the formula default for M objects.
func DefaultNumref(m int) int {
	return int(2 * math.Sqrt(float64(m)))
}

// DefaultKi computes the formula default given a resolved numref.
func DefaultKi(numref int) int {
	k := numref / 4
	if k < 1 {
		k = 1
	}
	return k
}

// CacheConfig holds the MIF query-result cache's shape.
type CacheConfig struct {
	Enabled  bool
	Capacity int
	TTL      time.Duration
}

// StorageConfig holds the SQLite persistence adapter's shape.
type StorageConfig struct {
	DSN        string // sqlite DSN, e.g. "discocore.db"
	Compress   bool   // deflate posting-list blobs
	WALEnabled bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tree: TreeConfig{
			Decomposition: "orthogonal",
			Pivot:         "mean",
			Sort:          true,
			GivenHeight:   0,
			Weighted:      false,
		},
		MIF: MIFConfig{
			Numref: 0, // derive from object count at build time
			Ki:     0,
			Ks:     0,
			Mpd:    5,
			Seed:   1,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Storage: StorageConfig{
			DSN:        "discocore.db",
			Compress:   false,
			WALEnabled: true,
		},
	}
}

// LoadFromEnv layers environment-variable overrides onto Default().
func LoadFromEnv() *Config {
	cfg := Default()

	if decomp := os.Getenv("DISCOCORE_TREE_DECOMPOSITION"); decomp != "" {
		cfg.Tree.Decomposition = decomp
	}
	if pivot := os.Getenv("DISCOCORE_TREE_PIVOT"); pivot != "" {
		cfg.Tree.Pivot = pivot
	}
	if sort := os.Getenv("DISCOCORE_TREE_SORT"); sort == "false" {
		cfg.Tree.Sort = false
	}
	if height := os.Getenv("DISCOCORE_TREE_HEIGHT"); height != "" {
		if h, err := strconv.Atoi(height); err == nil {
			cfg.Tree.GivenHeight = h
		}
	}
	if weighted := os.Getenv("DISCOCORE_TREE_WEIGHTED"); weighted == "true" {
		cfg.Tree.Weighted = true
	}

	if numref := os.Getenv("DISCOCORE_MIF_NUMREF"); numref != "" {
		if n, err := strconv.Atoi(numref); err == nil {
			cfg.MIF.Numref = n
		}
	}
	if ki := os.Getenv("DISCOCORE_MIF_KI"); ki != "" {
		if k, err := strconv.Atoi(ki); err == nil {
			cfg.MIF.Ki = k
		}
	}
	if ks := os.Getenv("DISCOCORE_MIF_KS"); ks != "" {
		if k, err := strconv.Atoi(ks); err == nil {
			cfg.MIF.Ks = k
		}
	}
	if mpd := os.Getenv("DISCOCORE_MIF_MPD"); mpd != "" {
		if m, err := strconv.Atoi(mpd); err == nil {
			cfg.MIF.Mpd = m
		}
	}
	if seed := os.Getenv("DISCOCORE_MIF_SEED"); seed != "" {
		if s, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.MIF.Seed = s
		}
	}

	if enabled := os.Getenv("DISCOCORE_CACHE_ENABLED"); enabled == "false" {
		cfg.Cache.Enabled = false
	}
	if capacity := os.Getenv("DISCOCORE_CACHE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = c
		}
	}
	if ttl := os.Getenv("DISCOCORE_CACHE_TTL"); ttl != "" {
		if t, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.TTL = t
		}
	}

	if dsn := os.Getenv("DISCOCORE_STORAGE_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if compress := os.Getenv("DISCOCORE_STORAGE_COMPRESS"); compress == "true" {
		cfg.Storage.Compress = true
	}
	if wal := os.Getenv("DISCOCORE_STORAGE_WAL"); wal == "false" {
		cfg.Storage.WALEnabled = false
	}

	return cfg
}

// Validate rejects configurations the tree/MIF constructors would
// otherwise fail on, surfacing the problem before a build starts.
func (c *Config) Validate() error {
	switch c.Tree.Decomposition {
	case "orthogonal", "hyperplane":
	default:
		return fmt.Errorf("invalid tree decomposition: %q (want orthogonal or hyperplane)", c.Tree.Decomposition)
	}
	switch c.Tree.Pivot {
	case "mean", "middle", "median":
	default:
		return fmt.Errorf("invalid tree pivot: %q (want mean, middle, or median)", c.Tree.Pivot)
	}
	if c.Tree.GivenHeight < 0 {
		return fmt.Errorf("invalid tree height: %d (must be >= 0)", c.Tree.GivenHeight)
	}

	if c.MIF.Numref < 0 {
		return fmt.Errorf("invalid mif numref: %d", c.MIF.Numref)
	}
	if c.MIF.Ki < 0 {
		return fmt.Errorf("invalid mif ki: %d", c.MIF.Ki)
	}
	if c.MIF.Ks < 0 {
		return fmt.Errorf("invalid mif ks: %d", c.MIF.Ks)
	}
	if c.MIF.Numref > 0 && c.MIF.Ks > c.MIF.Numref {
		return fmt.Errorf("invalid mif ks: %d exceeds numref %d", c.MIF.Ks, c.MIF.Numref)
	}
	if c.MIF.Mpd < 0 {
		return fmt.Errorf("invalid mif mpd: %d (must be >= 0)", c.MIF.Mpd)
	}

	if c.Cache.Enabled && c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be > 0)", c.Cache.Capacity)
	}

	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN not specified")
	}

	return nil
}
