package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

var ErrConnClosed = errors.New("websocket: connection closed")

// CloseTryAgainLater is sent when the subscriber limit is reached.
const CloseTryAgainLater = websocket.CloseTryAgainLater

type Config struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongWait     time.Duration `yaml:"pong_wait"`
	// PingPeriod must be shorter than PongWait.
	PingPeriod     time.Duration `yaml:"ping_period"`
	ReadLimitBytes int64         `yaml:"read_limit_bytes"`
}

func (c *Config) ApplyDefaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = 4096
	}
}

// Upgrader turns push-channel HTTP requests into Conns.
type Upgrader struct {
	up  websocket.Upgrader
	cfg Config
}

// NewUpgrader accepts any origin; the push channel is public.
func NewUpgrader(cfg Config) *Upgrader {
	cfg.ApplyDefaults()
	return &Upgrader{
		up: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

// Upgrade completes the handshake and starts the keepalive pinger. On error
// the upgrader has already replied to the client.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := newConn(ws, u.cfg)
	go c.pingLoop()
	return c, nil
}

// Conn is one viewer socket. Samples go out as one JSON text frame each.
type Conn struct {
	ws  *websocket.Conn
	cfg Config

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newConn(ws *websocket.Conn, cfg Config) *Conn {
	return &Conn{ws: ws, cfg: cfg, done: make(chan struct{})}
}

func (c *Conn) Send(ctx context.Context, s *domain.StoredSample) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("websocket: encoding sample: %w", err)
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// ReadLoop blocks until the peer goes away. Incoming frames are discarded;
// reading is only how close frames and pongs are noticed.
func (c *Conn) ReadLoop() {
	defer c.Close()

	c.ws.SetReadLimit(c.cfg.ReadLimitBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// CloseWithReason sends a close frame before closing, used when the server
// refuses the subscription.
func (c *Conn) CloseWithReason(code int, reason string) error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	return c.Close()
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

var _ ports.Conn = (*Conn)(nil)
