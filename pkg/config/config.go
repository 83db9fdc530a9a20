package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jankotek/titan/pkg/common/log"
	"github.com/jankotek/titan/pkg/store/codec"
	"github.com/jankotek/titan/pkg/telemetry"
)

const (
	// CurrentConfigVersion is written into new configurations
	CurrentConfigVersion = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
)

// Config describes how titan opens its store and what it logs.
type Config struct {
	Version int `json:"version" toml:"version"`

	// Store configuration
	DataDir     string `json:"data_dir" toml:"data_dir"`
	InMemory    bool   `json:"in_memory" toml:"in_memory"`
	SyncWrites  bool   `json:"sync_writes" toml:"sync_writes"`
	Compression string `json:"compression" toml:"compression"`
	Checksums   bool   `json:"checksums" toml:"checksums"`

	// Badger tuning
	MemTableSize   int64 `json:"memtable_size" toml:"memtable_size"`
	ValueThreshold int64 `json:"value_threshold" toml:"value_threshold"`
	BlockCacheSize int64 `json:"block_cache_size" toml:"block_cache_size"`

	// Logging
	LogLevel string `json:"log_level" toml:"log_level"`

	Telemetry telemetry.Config `json:"telemetry" toml:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		Version: CurrentConfigVersion,

		DataDir:     dataDir,
		SyncWrites:  true,
		Compression: codec.Snappy.String(),
		Checksums:   true,

		MemTableSize:   64 << 20, // 64MB
		ValueThreshold: 1 << 20,  // 1MB
		BlockCacheSize: 256 << 20,

		LogLevel: log.LevelInfo.String(),

		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.DataDir == "" && !c.InMemory {
		return fmt.Errorf("%w: data directory not specified", ErrInvalidConfig)
	}

	if _, err := codec.ParseCompression(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.MemTableSize <= 0 {
		return fmt.Errorf("%w: MemTable size must be positive", ErrInvalidConfig)
	}

	if c.ValueThreshold <= 0 {
		return fmt.Errorf("%w: value threshold must be positive", ErrInvalidConfig)
	}

	if c.BlockCacheSize < 0 {
		return fmt.Errorf("%w: block cache size cannot be negative", ErrInvalidConfig)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// CompressionCodec returns the parsed value compression
func (c *Config) CompressionCodec() codec.Compression {
	c.mu.RLock()
	defer c.mu.RUnlock()
	compression, _ := codec.ParseCompression(c.Compression)
	return compression
}

// Level returns the parsed log level
func (c *Config) Level() log.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// LoadConfig reads a configuration file on top of the defaults. Files ending in
// .toml are parsed as TOML, anything else as JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig("")
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes the configuration to path, as TOML when the path ends in
// .toml and as JSON otherwise. The file is replaced atomically.
func (c *Config) SaveConfig(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = []byte(buf.String())
	} else {
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// LoadFromEnv overrides fields from TITAN_* environment variables. Values that
// fail to parse are ignored.
func (c *Config) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv("TITAN_DATA_DIR"); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv("TITAN_IN_MEMORY"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.InMemory = b
		}
	}

	if val := os.Getenv("TITAN_SYNC_WRITES"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.SyncWrites = b
		}
	}

	if val := os.Getenv("TITAN_COMPRESSION"); val != "" {
		c.Compression = val
	}

	if val := os.Getenv("TITAN_CHECKSUMS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Checksums = b
		}
	}

	if val := os.Getenv("TITAN_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	c.Telemetry.LoadFromEnv()
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
