package monitoreo

import (
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/mqtt"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/websocket"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/config"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/query"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// Config re-exports the root configuration struct so embedders can build or
// tweak it in code.
type Config = config.Config

type (
	ServerConfig    = config.ServerConfig
	AuthConfig      = config.AuthConfig
	StoreConfig     = config.StoreConfig
	TimescaleConfig = config.TimescaleConfig
	SQLiteConfig    = config.SQLiteConfig
	MetricsConfig   = config.MetricsConfig
	LogConfig       = config.LogConfig
	// FanoutPolicy bounds the push mailbox and per-viewer buffers.
	FanoutPolicy    = ports.FanoutPolicy
	WebSocketConfig = websocket.Config
	QueryConfig     = query.Config
	MQTTConfig      = mqtt.Config
)

const (
	DriverTimescale = config.DriverTimescale
	DriverSQLite    = config.DriverSQLite
)

// LoadConfig reads YAML from disk, applies defaults and environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
