package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/mqtt"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/websocket"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/query"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// Environment variables that override the file. Secrets normally come from
// here rather than from the YAML.
const (
	EnvDeviceKey     = "MONITOREO_DEVICE_KEY"
	EnvSessionSecret = "MONITOREO_SESSION_SECRET"
	EnvDatabaseURL   = "MONITOREO_DATABASE_URL"
	EnvAddr          = "MONITOREO_ADDR"
)

const (
	DriverTimescale = "timescale"
	DriverSQLite    = "sqlite"
)

const minSessionSecretLen = 16

type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Auth      AuthConfig         `yaml:"auth"`
	Store     StoreConfig        `yaml:"store"`
	Fanout    ports.FanoutPolicy `yaml:"fanout"`
	WebSocket websocket.Config   `yaml:"websocket"`
	Query     query.Config       `yaml:"query"`
	Metrics   MetricsConfig      `yaml:"metrics"`
	MQTT      mqtt.Config        `yaml:"mqtt"`
	Log       LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type AuthConfig struct {
	DeviceKey     string        `yaml:"device_key"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
}

type StoreConfig struct {
	Driver    string          `yaml:"driver"`
	Timescale TimescaleConfig `yaml:"timescale"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
}

type TimescaleConfig struct {
	ConnString  string `yaml:"conn_string"`
	Table       string `yaml:"table"`
	UsersTable  string `yaml:"users_table"`
	MaxOpenConn int    `yaml:"max_open_conns"`
}

type SQLiteConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, then applies defaults and environment overrides
// before validating.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 32 << 10
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 7 * 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverTimescale
	}
	if c.Store.Timescale.Table == "" {
		c.Store.Timescale.Table = "mediciones"
	}
	if c.Store.Timescale.UsersTable == "" {
		c.Store.Timescale.UsersTable = "usuarios"
	}
	if c.Store.Timescale.MaxOpenConn == 0 {
		c.Store.Timescale.MaxOpenConn = 10
	}
	if c.Store.SQLite.PoolSize == 0 {
		c.Store.SQLite.PoolSize = 4
	}
	if c.Fanout.MaxQueueLen == 0 {
		c.Fanout.MaxQueueLen = 1024
	}
	if c.Fanout.MaxBatchSize == 0 {
		c.Fanout.MaxBatchSize = 64
	}
	if c.Fanout.IdleSleep == 0 {
		c.Fanout.IdleSleep = 5 * time.Millisecond
	}
	if c.Fanout.SubscriberBuffer == 0 {
		c.Fanout.SubscriberBuffer = 32
	}
	if c.Fanout.WriteTimeout == 0 {
		c.Fanout.WriteTimeout = 5 * time.Second
	}
	if c.Fanout.OnQueueFull == "" {
		c.Fanout.OnQueueFull = "block"
	}
	if c.Query.RecentLimit == 0 {
		c.Query.RecentLimit = query.DefaultRecentLimit
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	c.WebSocket.ApplyDefaults()
	if c.MQTT.Enabled {
		c.MQTT.ApplyDefaults()
	}
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvDeviceKey); ok {
		c.Auth.DeviceKey = v
	}
	if v, ok := os.LookupEnv(EnvSessionSecret); ok {
		c.Auth.SessionSecret = v
	}
	if v, ok := os.LookupEnv(EnvDatabaseURL); ok {
		c.Store.Timescale.ConnString = v
	}
	if v, ok := os.LookupEnv(EnvAddr); ok {
		c.Server.Addr = v
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}
	if c.Auth.DeviceKey == "" {
		return fmt.Errorf("auth.device_key is required (or set %s)", EnvDeviceKey)
	}
	if len(c.Auth.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("auth.session_secret must be at least %d bytes (or set %s)", minSessionSecretLen, EnvSessionSecret)
	}
	if c.Auth.SessionTTL < 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	switch c.Store.Driver {
	case DriverTimescale:
		if c.Store.Timescale.ConnString == "" {
			return fmt.Errorf("store.timescale.conn_string is required (or set %s)", EnvDatabaseURL)
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverTimescale, DriverSQLite, c.Store.Driver)
	}

	switch c.Fanout.OnQueueFull {
	case "block", "drop":
	default:
		return fmt.Errorf("fanout.on_queue_full must be block or drop, got %q", c.Fanout.OnQueueFull)
	}
	if c.Fanout.MaxSubscribers < 0 {
		return fmt.Errorf("fanout.max_subscribers must not be negative")
	}

	if c.Query.MaxRangeResults < 0 {
		return fmt.Errorf("query.max_range_results must not be negative")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	if c.MQTT.Enabled {
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt config: %w", err)
		}
	}
	return nil
}
