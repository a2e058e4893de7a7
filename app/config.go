package app

import (
	"fmt"
	"strings"

	coreconfig "github.com/m3rciful/pairbot/core/config"
	coredatabase "github.com/m3rciful/pairbot/core/database"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
)

const defaultThreadCapacity = 10000

// StorageConfig selects the user store.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// ResetOnStart returns every user to idle at startup. Defaults to true.
	ResetOnStart *bool `yaml:"reset_on_start" envconfig:"STORAGE_RESET_ON_START"`
}

// RedisConfig holds the Redis connection used by the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// SQLiteConfig holds the database file used by the sqlite driver.
type SQLiteConfig struct {
	Path string `yaml:"path" envconfig:"SQLITE_PATH"`
}

// RelayConfig tunes message relaying.
type RelayConfig struct {
	// ThreadCapacity bounds how many relayed messages are remembered for
	// reply threading.
	ThreadCapacity int `yaml:"thread_capacity" envconfig:"RELAY_THREAD_CAPACITY"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage  StorageConfig       `yaml:"storage"`
	Database coredatabase.Config `yaml:"database"`
	Redis    RedisConfig         `yaml:"redis"`
	SQLite   SQLiteConfig        `yaml:"sqlite"`
	Relay    RelayConfig         `yaml:"relay"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// ResetOnStart reports whether statuses are reset before serving.
func (c *Config) ResetOnStart() bool {
	return c.Storage.ResetOnStart == nil || *c.Storage.ResetOnStart
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = DriverMemory
	}
	switch driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when storage.driver is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
	case DriverRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when storage.driver is 'redis'")
		}
		if cfg.Redis.DB < 0 {
			return fmt.Errorf("redis.db must be >= 0")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			return fmt.Errorf("sqlite.path is required when storage.driver is 'sqlite'")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, postgres, redis, sqlite", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if cfg.Relay.ThreadCapacity < 0 {
		return fmt.Errorf("relay.thread_capacity must be >= 0")
	}
	if cfg.Relay.ThreadCapacity == 0 {
		cfg.Relay.ThreadCapacity = defaultThreadCapacity
	}
	return nil
}
