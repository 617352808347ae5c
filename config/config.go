// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/0xsoniclabs/smartdb/common/logging"
	"github.com/0xsoniclabs/smartdb/database/cache"
	"github.com/pbnjay/memory"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverLevelDB  = "leveldb"
	DriverMemory   = "memory"
)

// EnvPrefix is the prefix of environment variables overriding configuration
// keys, e.g. SMARTDB_STORAGE_DRIVER for storage.driver.
const EnvPrefix = "SMARTDB"

// A kind without an explicit limit may use 1/memoryShare of the total memory
// for entities of roughly bytesPerEntity bytes each.
const (
	memoryShare         = 64
	bytesPerEntity      = 2 << 10
	maxDerivedCacheSize = 1_000_000
)

type Config struct {
	History History
	Cache   Cache
	Storage Storage
	Log     Log
	Metrics Metrics
}

type History struct {
	MaxVersionsHold int
}

type Cache struct {
	BlockCount  int
	DefaultSize int // < 0 derives the size from the available memory
}

type Storage struct {
	Driver   string
	Path     string
	Postgres Postgres
}

type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type Log struct {
	Level  string
	Format string
}

type Metrics struct {
	Enabled bool
}

// Default returns the configuration used for keys that are neither set in a
// configuration file nor in the environment.
func Default() Config {
	return Config{
		History: History{MaxVersionsHold: 10},
		Cache:   Cache{BlockCount: 10},
		Storage: Storage{
			Driver: DriverSQLite,
			Path:   "smartdb.sqlite",
			Postgres: Postgres{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				DBName:   "smartdb",
				SSLMode:  "disable",
				MaxConns: 10,
			},
		},
		Log: Log{Level: "info", Format: logging.FormatConsole},
	}
}

// Load reads the configuration file at the given path, if any, and applies
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	defaults := Default()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("history.max_versions_hold", defaults.History.MaxVersionsHold)
	v.SetDefault("cache.block_count", defaults.Cache.BlockCount)
	v.SetDefault("cache.default_size", defaults.Cache.DefaultSize)
	v.SetDefault("storage.driver", defaults.Storage.Driver)
	v.SetDefault("storage.path", defaults.Storage.Path)
	v.SetDefault("storage.postgres.host", defaults.Storage.Postgres.Host)
	v.SetDefault("storage.postgres.port", defaults.Storage.Postgres.Port)
	v.SetDefault("storage.postgres.user", defaults.Storage.Postgres.User)
	v.SetDefault("storage.postgres.password", defaults.Storage.Postgres.Password)
	v.SetDefault("storage.postgres.dbname", defaults.Storage.Postgres.DBName)
	v.SetDefault("storage.postgres.sslmode", defaults.Storage.Postgres.SSLMode)
	v.SetDefault("storage.postgres.max_conns", defaults.Storage.Postgres.MaxConns)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read configuration %s: %w", path, err)
		}
	}

	res := Config{
		History: History{MaxVersionsHold: v.GetInt("history.max_versions_hold")},
		Cache: Cache{
			BlockCount:  v.GetInt("cache.block_count"),
			DefaultSize: v.GetInt("cache.default_size"),
		},
		Storage: Storage{
			Driver: v.GetString("storage.driver"),
			Path:   v.GetString("storage.path"),
			Postgres: Postgres{
				Host:     v.GetString("storage.postgres.host"),
				Port:     v.GetInt("storage.postgres.port"),
				User:     v.GetString("storage.postgres.user"),
				Password: v.GetString("storage.postgres.password"),
				DBName:   v.GetString("storage.postgres.dbname"),
				SSLMode:  v.GetString("storage.postgres.sslmode"),
				MaxConns: v.GetInt("storage.postgres.max_conns"),
			},
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Metrics: Metrics{Enabled: v.GetBool("metrics.enabled")},
	}
	return res, res.Validate()
}

// Validate checks the configuration for values no store can be opened with.
func (c Config) Validate() error {
	var errs []error
	if c.History.MaxVersionsHold <= 0 {
		errs = append(errs, fmt.Errorf("history.max_versions_hold must be positive, got %d", c.History.MaxVersionsHold))
	}
	if c.Cache.BlockCount <= 0 {
		errs = append(errs, fmt.Errorf("cache.block_count must be positive, got %d", c.Cache.BlockCount))
	}
	if c.Cache.DefaultSize < 0 {
		errs = append(errs, fmt.Errorf("cache.default_size must not be negative, got %d", c.Cache.DefaultSize))
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverLevelDB:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required by driver %s", c.Storage.Driver))
		}
	case DriverPostgres:
		if c.Storage.Postgres.Port <= 0 || c.Storage.Postgres.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid storage.postgres.port %d", c.Storage.Postgres.Port))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver))
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("unsupported log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// EntityCacheSize returns the capacity of entity kinds without an explicit
// limit. If none is configured, it is derived from the total memory.
func (c Cache) EntityCacheSize() int {
	if c.DefaultSize > 0 {
		return c.DefaultSize
	}
	return cacheSizeFor(memory.TotalMemory())
}

func cacheSizeFor(totalMemory uint64) int {
	if totalMemory == 0 {
		return cache.DefaultCapacity
	}
	size := totalMemory / memoryShare / bytesPerEntity
	return int(min(max(size, cache.MinCapacity), maxDerivedCacheSize))
}

// LoggingConfig converts the log section into the options of the root logger.
func (l Log) LoggingConfig() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format}
}
