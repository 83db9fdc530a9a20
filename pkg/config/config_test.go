package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jankotek/titan/pkg/common/log"
	"github.com/jankotek/titan/pkg/store/codec"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/titandb")

	if cfg.Version != CurrentConfigVersion {
		t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
	}
	if cfg.DataDir != "/tmp/titandb" {
		t.Errorf("expected data dir /tmp/titandb, got %s", cfg.DataDir)
	}
	if cfg.CompressionCodec() != codec.Snappy {
		t.Errorf("expected snappy compression, got %v", cfg.CompressionCodec())
	}
	if !cfg.Checksums || !cfg.SyncWrites {
		t.Errorf("expected checksums and sync writes to default on")
	}
	if cfg.Level() != log.LevelInfo {
		t.Errorf("expected info log level, got %v", cfg.Level())
	}
	if cfg.Telemetry.Enabled {
		t.Errorf("expected telemetry to be disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/titandb")
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name:     "invalid version",
			mutate:   func(c *Config) { c.Version = 0 },
			expected: "invalid configuration: invalid version 0",
		},
		{
			name:     "empty data dir",
			mutate:   func(c *Config) { c.DataDir = "" },
			expected: "invalid configuration: data directory not specified",
		},
		{
			name:     "unknown compression",
			mutate:   func(c *Config) { c.Compression = "lz4" },
			expected: "invalid configuration: unknown compression codec: lz4",
		},
		{
			name:     "unknown log level",
			mutate:   func(c *Config) { c.LogLevel = "loud" },
			expected: `invalid configuration: unknown log level "loud"`,
		},
		{
			name:     "zero memtable size",
			mutate:   func(c *Config) { c.MemTableSize = 0 },
			expected: "invalid configuration: MemTable size must be positive",
		},
		{
			name: "bad telemetry",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.SampleRate = 2
			},
			expected: "invalid configuration: telemetry: sample_rate must be between 0.0 and 1.0, got 2.000000",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/titandb")
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if err.Error() != tc.expected {
				t.Errorf("expected error %q, got %q", tc.expected, err.Error())
			}
		})
	}

	inMemory := NewDefaultConfig("")
	inMemory.InMemory = true
	if err := inMemory.Validate(); err != nil {
		t.Errorf("expected in-memory config without data dir to be valid, got %v", err)
	}
}

func TestConfigSaveLoad(t *testing.T) {
	for _, name := range []string{"titan.json", "titan.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "conf", name)

			cfg := NewDefaultConfig("/var/lib/titan")
			cfg.Compression = "zstd"
			cfg.Checksums = false
			cfg.LogLevel = "debug"
			cfg.Telemetry.Enabled = true
			cfg.Telemetry.BatchTimeout = 2 * time.Second

			if err := cfg.SaveConfig(path); err != nil {
				t.Fatalf("failed to save config: %v", err)
			}

			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}

			if loaded.DataDir != "/var/lib/titan" {
				t.Errorf("expected data dir /var/lib/titan, got %s", loaded.DataDir)
			}
			if loaded.CompressionCodec() != codec.Zstd {
				t.Errorf("expected zstd compression, got %v", loaded.CompressionCodec())
			}
			if loaded.Checksums {
				t.Errorf("expected checksums off")
			}
			if loaded.Level() != log.LevelDebug {
				t.Errorf("expected debug level, got %v", loaded.Level())
			}
			if !loaded.Telemetry.Enabled || loaded.Telemetry.BatchTimeout != 2*time.Second {
				t.Errorf("unexpected telemetry section: %+v", loaded.Telemetry)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Errorf("expected temp file to be renamed away")
			}
		})
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.toml")
	data := "data_dir = \"/srv/titan\"\nlog_level = \"warn\"\n\n[telemetry]\nservice_name = \"titan-test\"\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.DataDir != "/srv/titan" || cfg.Level() != log.LevelWarn {
		t.Errorf("unexpected values: %s %v", cfg.DataDir, cfg.Level())
	}
	if cfg.Telemetry.ServiceName != "titan-test" {
		t.Errorf("expected telemetry service name from file, got %s", cfg.Telemetry.ServiceName)
	}
	if cfg.MemTableSize != NewDefaultConfig("").MemTableSize {
		t.Errorf("expected defaults to fill missing fields, got memtable size %d", cfg.MemTableSize)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err != ErrConfigNotFound {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0644)
	if _, err := LoadConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for malformed file, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.json")
	os.WriteFile(invalid, []byte(`{"data_dir": "/x", "compression": "brotli"}`), 0644)
	if _, err := LoadConfig(invalid); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for invalid values, got %v", err)
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("TITAN_DATA_DIR", "/env/dir")
	t.Setenv("TITAN_IN_MEMORY", "true")
	t.Setenv("TITAN_COMPRESSION", "none")
	t.Setenv("TITAN_CHECKSUMS", "false")
	t.Setenv("TITAN_SYNC_WRITES", "nope")
	t.Setenv("TITAN_LOG_LEVEL", "error")
	t.Setenv("TITAN_TELEMETRY_ENABLED", "true")

	cfg := NewDefaultConfig("/default")
	cfg.LoadFromEnv()

	if cfg.DataDir != "/env/dir" || !cfg.InMemory {
		t.Errorf("unexpected store settings: %s %v", cfg.DataDir, cfg.InMemory)
	}
	if cfg.CompressionCodec() != codec.None || cfg.Checksums {
		t.Errorf("unexpected codec settings: %v %v", cfg.CompressionCodec(), cfg.Checksums)
	}
	if !cfg.SyncWrites {
		t.Errorf("expected unparsable TITAN_SYNC_WRITES to be ignored")
	}
	if cfg.Level() != log.LevelError {
		t.Errorf("expected error level, got %v", cfg.Level())
	}
	if !cfg.Telemetry.Enabled {
		t.Errorf("expected telemetry env overrides to apply")
	}
}

func TestConfigUpdate(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/titandb")

	cfg.Update(func(c *Config) {
		c.MemTableSize = 128 << 20
		c.InMemory = true
	})

	if cfg.MemTableSize != 128<<20 {
		t.Errorf("expected memtable size %d, got %d", 128<<20, cfg.MemTableSize)
	}
	if !cfg.InMemory {
		t.Errorf("expected in-memory after update")
	}
}
