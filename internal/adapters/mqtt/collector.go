package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// TransportName tags submissions that arrived over MQTT.
const TransportName = "mqtt"

// Config for the optional broker-side ingestion path. Devices publish the
// same JSON body they would POST and carry the device key in an MQTT v5
// user property.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	Topic       string `yaml:"topic"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	KeepAlive   uint16 `yaml:"keep_alive"`
	QoS         byte   `yaml:"qos"` // 0 is promoted to 1
	KeyProperty string `yaml:"key_property"`
}

func (c *Config) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "mediciones"
	}
	if c.ClientID == "" {
		c.ClientID = "monitoreo-ingest"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.KeyProperty == "" {
		c.KeyProperty = "x-api-key"
	}
}

func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker_url is required")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return fmt.Errorf("broker_url: %w", err)
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// Collector subscribes to the ingestion topic and emits one Submission per
// message. Authentication and decoding happen downstream, exactly as for HTTP.
type Collector struct {
	cfg Config
	obs ports.Observability
	now func() time.Time

	mu      sync.Mutex
	cm      *autopaho.ConnectionManager
	cancel  context.CancelFunc
	ctx     context.Context
	out     chan<- *domain.Submission
	started bool
}

func NewCollector(cfg Config, obs ports.Observability) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Collector{cfg: cfg, obs: obs, now: time.Now}, nil
}

func (c *Collector) Start(out chan<- *domain.Submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("mqtt collector already started")
	}

	broker, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqtt broker url: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel, c.out = ctx, cancel, out

	cliCfg := autopaho.ClientConfig{
		BrokerUrls:                    []*url.URL{broker},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.obs.LogInfo("mqtt connection up", ports.Field{Key: "broker", Value: broker.Host})
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: c.cfg.Topic, QoS: c.cfg.QoS}},
			}); err != nil {
				c.obs.LogError("mqtt subscribe failed", err, ports.Field{Key: "topic", Value: c.cfg.Topic})
				return
			}
			c.obs.LogInfo("mqtt subscribed", ports.Field{Key: "topic", Value: c.cfg.Topic})
		},
		OnConnectError: func(err error) {
			c.obs.LogError("mqtt connect failed", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			Router:   paho.NewStandardRouterWithDefault(c.handle),
			OnClientError: func(err error) {
				c.obs.LogError("mqtt client error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.obs.LogError("mqtt server disconnect", fmt.Errorf("reason code %d", d.ReasonCode))
			},
		},
	}
	if c.cfg.Username != "" {
		cliCfg.ConnectUsername = c.cfg.Username
		cliCfg.ConnectPassword = []byte(c.cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm
	c.started = true
	return nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cm, cancel := c.cm, c.cancel
	c.started = false
	c.cm, c.cancel = nil, nil
	c.mu.Unlock()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if cm != nil {
		if e := cm.Disconnect(ctx); e != nil && !errors.Is(e, autopaho.ConnectionDownError) {
			err = errors.Join(err, e)
		}
	}
	cancel()
	return err
}

func (c *Collector) handle(msg *paho.Publish) {
	c.mu.Lock()
	ctx, out := c.ctx, c.out
	c.mu.Unlock()
	if ctx == nil || out == nil {
		return
	}

	sub := SubmissionFromPublish(msg, c.cfg.KeyProperty, c.now())
	select {
	case <-ctx.Done():
	case out <- sub:
	}
}

// SubmissionFromPublish lifts an MQTT message into a Submission. A missing
// key property yields an empty DeviceKey, which the gateway rejects.
func SubmissionFromPublish(msg *paho.Publish, keyProperty string, receivedAt time.Time) *domain.Submission {
	var key string
	if msg.Properties != nil {
		key = msg.Properties.User.Get(keyProperty)
	}
	return &domain.Submission{
		DeviceKey:  key,
		Body:       msg.Payload,
		ReceivedAt: receivedAt,
		Transport:  TransportName,
	}
}

var _ ports.Collector = (*Collector)(nil)
