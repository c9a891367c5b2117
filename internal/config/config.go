// Package config loads the payload manager's configuration from a YAML
// file plus environment overrides, and optionally watches the file for
// changes so capacity limits can be adjusted without a restart.
//
// Grounded on synnergy-network/pkg/config's viper.Load pattern
// (_examples/orbas1-Synnergy) and the fsnotify watch loop used by
// untoldecay-BeadsLog's log tailer. The teacher's own
// internal/config/config.go is hand-rolled os.Getenv parsing; viper
// replaces it here because the expanded configuration surface (nested
// per-tier capacity limits, hot reload) outgrows flat env-var parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the recognized configuration surface from SPEC_FULL.md §6.5:
// { node_id, server.bind_address, database.*, storage.*, spill.workers,
// leases.{default,max}, observability.* }.
type Config struct {
	NodeID string `mapstructure:"node_id"`

	Server struct {
		BindAddress string `mapstructure:"bind_address"`
	} `mapstructure:"server"`

	Database struct {
		Driver   string         `mapstructure:"driver"` // memory | sqlite | postgres | badger
		Sqlite   SqliteConfig   `mapstructure:"sqlite"`
		Postgres PostgresConfig `mapstructure:"postgres"`
	} `mapstructure:"database"`

	Storage struct {
		Ram    RamConfig    `mapstructure:"ram"`
		Disk   DiskConfig   `mapstructure:"disk"`
		Gpu    GpuConfig    `mapstructure:"gpu"`
		Object ObjectConfig `mapstructure:"object"`
	} `mapstructure:"storage"`

	Spill struct {
		Workers   int `mapstructure:"workers"`
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"spill"`

	Tiering struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"tiering"`

	Leases struct {
		Default time.Duration `mapstructure:"default"`
		Max     time.Duration `mapstructure:"max"`
	} `mapstructure:"leases"`

	Observability struct {
		MetricsEnabled bool   `mapstructure:"metrics_enabled"`
		TracingEnabled bool   `mapstructure:"tracing_enabled"`
		OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
		Transport      string `mapstructure:"transport"` // grpc | http
	} `mapstructure:"observability"`
}

// RamConfig holds the RAM tier's capacity limit.
type RamConfig struct {
	CapacityBytes uint64 `mapstructure:"capacity_bytes"`
}

// DiskConfig holds the disk tier's root path and capacity limit.
type DiskConfig struct {
	RootPath      string `mapstructure:"root_path"`
	CapacityBytes uint64 `mapstructure:"capacity_bytes"`
}

// GpuConfig holds the set of GPU device ids made available to the
// payload manager; an empty Devices list disables the GPU tier.
type GpuConfig struct {
	Devices []int `mapstructure:"devices"`
}

// ObjectConfig holds the S3-compatible object tier's bucket settings.
type ObjectConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// SqliteConfig holds the sqlite repository backend's file path.
type SqliteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds the postgres repository backend's connection DSN.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "payloadmgr-0")
	v.SetDefault("server.bind_address", "0.0.0.0:9090")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.sqlite.path", "./data/payloadmgr.db")
	v.SetDefault("storage.ram.capacity_bytes", uint64(1<<30))
	v.SetDefault("storage.disk.root_path", "./data/disk")
	v.SetDefault("storage.disk.capacity_bytes", uint64(16<<30))
	v.SetDefault("spill.workers", 4)
	v.SetDefault("spill.queue_size", 256)
	v.SetDefault("tiering.interval", 100*time.Millisecond)
	v.SetDefault("leases.default", 30*time.Second)
	v.SetDefault("leases.max", 10*time.Minute)
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.transport", "grpc")
}

// Load reads configuration from path (if non-empty), merges
// PAYLOADMGR_-prefixed environment variable overrides, and unmarshals
// the result. path may be empty, in which case only defaults and
// environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PAYLOADMGR")
	v.SetEnvKeyReplacer(envReplacer())
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Watcher hot-reloads a Config from its backing file whenever it
// changes on disk, delivering each successfully-parsed revision on C.
// Parse failures are dropped silently — the last good Config keeps
// being used by whoever is reading C.
type Watcher struct {
	v *viper.Viper
	C <-chan *Config
}

// WatchFile loads path and returns a Watcher that re-parses it on every
// write, provided path is non-empty. The returned Config is the
// already-loaded initial value; callers should use it directly rather
// than waiting on C for the first revision.
func WatchFile(path string) (*Config, *Watcher, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PAYLOADMGR")
	v.SetEnvKeyReplacer(envReplacer())
	v.AutomaticEnv()

	if path == "" {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling config: %w", err)
		}
		return cfg, nil, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	updates := make(chan *Config, 1)
	v.OnConfigChange(func(_ fsnotify.Event) {
		next := &Config{}
		if err := v.Unmarshal(next); err != nil {
			return
		}
		select {
		case updates <- next:
		default:
			// Drop the stale pending revision in favor of the new one.
			select {
			case <-updates:
			default:
			}
			updates <- next
		}
	})
	v.WatchConfig()

	return cfg, &Watcher{v: v, C: updates}, nil
}

// envReplacer maps nested config keys like "storage.ram.capacity_bytes"
// to the environment variable PAYLOADMGR_STORAGE_RAM_CAPACITY_BYTES.
func envReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
