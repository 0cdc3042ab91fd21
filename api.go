package monitoreo

import (
	base "github.com/marcelofrutosn/sistema-de-monitoreo/pkg/monitoreo"
)

// Store drivers accepted in Config.Store.Driver.
const (
	DriverTimescale = base.DriverTimescale
	DriverSQLite    = base.DriverSQLite
)

// Re-exported errors for convenience.
var (
	ErrChannelSubscriberClosed = base.ErrChannelSubscriberClosed
)

// Type aliases so consumers can import the module root directly.
type (
	Config          = base.Config
	ServerConfig    = base.ServerConfig
	AuthConfig      = base.AuthConfig
	StoreConfig     = base.StoreConfig
	TimescaleConfig = base.TimescaleConfig
	SQLiteConfig    = base.SQLiteConfig
	MetricsConfig   = base.MetricsConfig
	LogConfig       = base.LogConfig
	FanoutPolicy    = base.FanoutPolicy
	WebSocketConfig = base.WebSocketConfig
	QueryConfig     = base.QueryConfig
	MQTTConfig      = base.MQTTConfig
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Sample          = base.Sample
	StoredSample    = base.StoredSample
	Submission      = base.Submission
	Account         = base.Account
	Collector       = base.Collector
	SampleStore     = base.SampleStore
	AccountStore    = base.AccountStore
	Conn            = base.Conn
	Subscription    = base.Subscription
	Observability   = base.Observability
	Field           = base.Field
	Clock           = base.Clock
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSampleStore(s SampleStore) RuntimeOption {
	return base.WithSampleStore(s)
}

func WithAccountStore(s AccountStore) RuntimeOption {
	return base.WithAccountStore(s)
}

func WithCollector(col Collector) RuntimeOption {
	return base.WithCollector(col)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithClock(c Clock) RuntimeOption {
	return base.WithClock(c)
}

// In-process subscribers.
func NewChannelSubscriber(buffer int) (Conn, <-chan StoredSample, func()) {
	return base.NewChannelSubscriber(buffer)
}
