// Package config loads kvshard's process configuration from a YAML file,
// with hot-reload for the knobs that are safe to change after boot.
package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper" // config file loading with hot-reload support
)

// PartitionConfig controls the durability core. Count and BaseDir are read
// once at boot; there is no defined migration for changing partition count
// or data directory after partitions have been created, so these are not
// hot-reloadable.
type PartitionConfig struct {
	Count   int    // number of partitions, fixed for process lifetime
	BaseDir string // directory holding WAL_partition_<i>.log files
}

// WALConfig controls the batched writer.
type WALConfig struct {
	BatchSize    int           // flush once this many entries are queued
	BatchTimeout time.Duration // or once this much time has elapsed
}

// BackgroundConfig controls the two per-partition workers.
type BackgroundConfig struct {
	SweepInterval    time.Duration // expiration sweeper wake interval
	SnapshotInterval time.Duration // snapshot worker wake interval
}

// NetworkConfig controls the demonstration RESP server, which sits
// outside the durability core and talks to it only through service.Adapter.
type NetworkConfig struct {
	Addr         string        // listen address
	IdleTimeout  time.Duration // idle connection timeout
	MaxConns     int           // max simultaneous connections
	ReadTimeout  time.Duration // per-read timeout
	WriteTimeout time.Duration // per-write timeout
}

// Config is the top-level process configuration.
type Config struct {
	Partition  PartitionConfig
	WAL        WALConfig
	Background BackgroundConfig
	Network    NetworkConfig
}

var (
	conf     *Config      // global configuration
	confOnce sync.Once    // ensures Init runs once
	mu       sync.RWMutex // guards conf
)

// Get returns the current configuration. Init or InitDefault must run first.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return conf
}

// Default returns the built-in defaults used when a knob isn't set in
// the config file or overridden by a flag.
func Default() *Config {
	return &Config{
		Partition: PartitionConfig{
			Count:   16,
			BaseDir: "./data",
		},
		WAL: WALConfig{
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
		},
		Background: BackgroundConfig{
			SweepInterval:    1 * time.Second,
			SnapshotInterval: 2 * time.Second,
		},
		Network: NetworkConfig{
			Addr:         ":8911",
			IdleTimeout:  5 * time.Second,
			MaxConns:     1000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// loadConfig overlays values present in v onto the built-in defaults, so
// a config file only needs to name the knobs it wants to change.
func loadConfig(v *viper.Viper) *Config {
	cfg := Default()

	if v.IsSet("partition.count") {
		cfg.Partition.Count = v.GetInt("partition.count")
	}
	if v.IsSet("partition.base_dir") {
		cfg.Partition.BaseDir = v.GetString("partition.base_dir")
	}

	if v.IsSet("wal.batch_size") {
		cfg.WAL.BatchSize = v.GetInt("wal.batch_size")
	}
	if v.IsSet("wal.batch_timeout") {
		cfg.WAL.BatchTimeout = v.GetDuration("wal.batch_timeout")
	}

	if v.IsSet("background.sweep_interval") {
		cfg.Background.SweepInterval = v.GetDuration("background.sweep_interval")
	}
	if v.IsSet("background.snapshot_interval") {
		cfg.Background.SnapshotInterval = v.GetDuration("background.snapshot_interval")
	}

	if v.IsSet("network.addr") {
		cfg.Network.Addr = v.GetString("network.addr")
	}
	if v.IsSet("network.idle_timeout") {
		cfg.Network.IdleTimeout = v.GetDuration("network.idle_timeout")
	}
	if v.IsSet("network.max_conns") {
		cfg.Network.MaxConns = v.GetInt("network.max_conns")
	}
	if v.IsSet("network.read_timeout") {
		cfg.Network.ReadTimeout = v.GetDuration("network.read_timeout")
	}
	if v.IsSet("network.write_timeout") {
		cfg.Network.WriteTimeout = v.GetDuration("network.write_timeout")
	}

	return cfg
}

// Init loads configPath once and starts watching it for changes. Only the
// Network section is swapped in on reload; Partition, WAL, and Background
// are captured at the first load and left alone for the rest of the
// process's life.
func Init(configPath string) error {
	var initErr error
	confOnce.Do(func() {
		v := viper.New()
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			initErr = err
			log.Printf("read config file failed: %v", err)
			return
		}

		mu.Lock()
		conf = loadConfig(v)
		mu.Unlock()

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Printf("config file changed: %s", e.Name)

			newV := viper.New()
			newV.SetConfigFile(configPath)
			if err := newV.ReadInConfig(); err != nil {
				log.Printf("reload config failed: %v", err)
				return
			}

			reloaded := loadConfig(newV)

			mu.Lock()
			conf.Network = reloaded.Network
			mu.Unlock()

			log.Printf("config reloaded, network settings applied")
		})
	})
	return initErr
}

// InitDefault installs Default() without reading a file. Used by
// cmd/server when no -conf path is given.
func InitDefault() {
	mu.Lock()
	defer mu.Unlock()
	if conf == nil {
		conf = Default()
	}
}
