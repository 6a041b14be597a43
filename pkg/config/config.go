// Package config loads server configuration from a YAML file with
// sensible defaults for local development.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr string `yaml:"addr"`

	Store StoreConfig `yaml:"store"`
	Room  RoomConfig  `yaml:"room"`
	Evict EvictConfig `yaml:"evict"`
	Auth  AuthConfig  `yaml:"auth"`

	LogLevel string `yaml:"log_level"`
}

type StoreConfig struct {
	// Backend selects the snapshot store: "memory", "sqlite" or "redis".
	Backend string `yaml:"backend"`

	SQLitePath string `yaml:"sqlite_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type RoomConfig struct {
	CommitIdleMs     int `yaml:"commit_idle_ms"`
	CommitMaxMs      int `yaml:"commit_max_ms"`
	CommandCacheSize int `yaml:"command_cache_size"`
	HistoryMax       int `yaml:"history_max"`
	CreationCeiling  int `yaml:"creation_ceiling"`
}

type EvictConfig struct {
	IdleMinutes     int `yaml:"idle_minutes"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

type AuthConfig struct {
	// JWTSecret enables token verification on the websocket and command
	// endpoints. Empty means anonymous access with editor role.
	JWTSecret string `yaml:"jwt_secret"`
}

func Default() *Config {
	return &Config{
		Addr: ":8088",
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "whiteroom.db",
			RedisAddr:  "localhost:6379",
		},
		Room: RoomConfig{
			CommitIdleMs:     500,
			CommitMaxMs:      2000,
			CommandCacheSize: 100,
			HistoryMax:       50,
			CreationCeiling:  1000,
		},
		Evict: EvictConfig{
			IdleMinutes:     5,
			IntervalSeconds: 60,
		},
		LogLevel: "info",
	}
}

// Load reads path and overlays it on the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func (c *Config) CommitIdle() time.Duration {
	return time.Duration(c.Room.CommitIdleMs) * time.Millisecond
}

func (c *Config) CommitMax() time.Duration {
	return time.Duration(c.Room.CommitMaxMs) * time.Millisecond
}

func (c *Config) EvictIdle() time.Duration {
	return time.Duration(c.Evict.IdleMinutes) * time.Minute
}

func (c *Config) EvictInterval() time.Duration {
	return time.Duration(c.Evict.IntervalSeconds) * time.Second
}
