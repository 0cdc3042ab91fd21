package monitoreo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/mqtt"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/observability"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/store"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/adapters/websocket"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/auth"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/fanout"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/httpapi"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/ingest"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/pipeline"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/query"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

const schemaTimeout = 30 * time.Second

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	samples       SampleStore
	accounts      AccountStore
	collector     Collector
	observability Observability
	clock         Clock
}

// WithSampleStore replaces the configured store for samples.
func WithSampleStore(s SampleStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.samples = s
	}
}

// WithAccountStore replaces the configured store for user accounts.
func WithAccountStore(s AccountStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.accounts = s
	}
}

// WithCollector adds a non-HTTP ingestion source. It takes precedence over
// the MQTT collector from the config.
func WithCollector(col Collector) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.collector = col
	}
}

// WithObservability plugs in a custom logging and metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithClock sets the time source for session tokens.
func WithClock(c Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

type schemaBootstrapper interface {
	EnsureSchema(ctx context.Context) error
}

// Runtime wires storage, authentication, ingestion, fan-out and the HTTP
// surface together and owns their lifecycle.
type Runtime struct {
	cfg       *Config
	obs       ports.Observability
	samples   ports.SampleStore
	accounts  ports.AccountStore
	collector ports.Collector
	schemas   []schemaBootstrapper
	closers   []io.Closer

	broadcaster *fanout.Broadcaster
	ingest      *ingest.Gateway
	query       *query.Gateway
	sessions    *auth.Sessions
	issuer      *auth.Issuer
	api         *httpapi.Server

	mu          sync.Mutex
	httpSrv     *http.Server
	httpLn      net.Listener
	metricsSrv  *http.Server
	cancel      context.CancelFunc
	gaugeStopCh chan struct{}
	fanoutDone  chan struct{}
	serveErr    chan error
}

// NewRuntime builds the default adapters (Timescale or SQLite store, zerolog +
// Prometheus observability, optional MQTT collector). RuntimeOption values
// override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		obs = observability.NewPromObs(logger, nil)
	}

	rt := &Runtime{cfg: cfg, obs: obs}
	if err := rt.openStores(overrides); err != nil {
		_ = rt.closeStores()
		return nil, err
	}

	sessions, err := auth.NewSessions([]byte(cfg.Auth.SessionSecret), cfg.Auth.SessionTTL, overrides.clock)
	if err != nil {
		_ = rt.closeStores()
		return nil, err
	}
	issuer, err := auth.NewIssuer(rt.accounts, sessions, cfg.Auth.BcryptCost, obs)
	if err != nil {
		_ = rt.closeStores()
		return nil, err
	}

	col := overrides.collector
	if col == nil && cfg.MQTT.Enabled {
		col, err = mqtt.NewCollector(cfg.MQTT, obs)
		if err != nil {
			_ = rt.closeStores()
			return nil, err
		}
	}

	rt.sessions = sessions
	rt.issuer = issuer
	rt.collector = col
	rt.broadcaster = fanout.New(cfg.Fanout, obs)
	rt.ingest = ingest.NewGateway(auth.NewDeviceKey(cfg.Auth.DeviceKey), rt.samples, rt.broadcaster, obs)
	rt.query = query.NewGateway(rt.samples, cfg.Query, obs)
	rt.api = httpapi.New(httpapi.Deps{
		Ingest:   rt.ingest,
		Query:    rt.query,
		Accounts: issuer,
		Sessions: sessions,
		Fanout:   rt.broadcaster,
		Upgrader: websocket.NewUpgrader(cfg.WebSocket),
		Obs:      obs,
	}, httpapi.Config{MaxBodyBytes: cfg.Server.MaxBodyBytes})

	return rt, nil
}

func (r *Runtime) openStores(o runtimeOverrides) error {
	r.samples, r.accounts = o.samples, o.accounts
	if r.samples != nil && r.accounts != nil {
		return nil
	}

	switch r.cfg.Store.Driver {
	case DriverSQLite:
		st, err := store.OpenSQLiteStore(store.SQLiteConfig{
			Path:     r.cfg.Store.SQLite.Path,
			PoolSize: r.cfg.Store.SQLite.PoolSize,
		})
		if err != nil {
			return err
		}
		r.closers = append(r.closers, st)
		if r.samples == nil {
			r.samples = st
		}
		if r.accounts == nil {
			r.accounts = st
		}
	case DriverTimescale, "":
		db, err := sql.Open("postgres", r.cfg.Store.Timescale.ConnString)
		if err != nil {
			return err
		}
		if n := r.cfg.Store.Timescale.MaxOpenConn; n > 0 {
			db.SetMaxOpenConns(n)
		}
		r.closers = append(r.closers, db)
		if r.samples == nil {
			ts := store.NewTimescaleSampleStore(db, r.cfg.Store.Timescale.Table)
			r.samples = ts
			r.schemas = append(r.schemas, ts)
		}
		if r.accounts == nil {
			pg := store.NewPostgresAccountStore(db, r.cfg.Store.Timescale.UsersTable)
			r.accounts = pg
			r.schemas = append(r.schemas, pg)
		}
	default:
		return fmt.Errorf("unknown store driver %q", r.cfg.Store.Driver)
	}
	return nil
}

// Start bootstraps the schema, then launches the fan-out loop, the optional
// collector, the API listener and the metrics server. It returns once
// everything is listening; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("runtime already started")
	}

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer schemaCancel()
	for _, s := range r.schemas {
		if err := s.EnsureSchema(schemaCtx); err != nil {
			return fmt.Errorf("schema bootstrap: %w", err)
		}
	}

	ln, err := net.Listen("tcp", r.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.Server.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.fanoutDone = make(chan struct{})
	go func() {
		r.broadcaster.Run(ctx)
		close(r.fanoutDone)
	}()

	if r.collector != nil {
		if err := pipeline.RunCollectorPipeline(ctx, r.collector, r.ingest, r.cfg.Fanout.MaxQueueLen, r.obs); err != nil {
			cancel()
			_ = ln.Close()
			r.cancel = nil
			return fmt.Errorf("start collector: %w", err)
		}
	}

	r.httpLn = ln
	r.httpSrv = &http.Server{
		Handler:      r.api.Handler(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
	r.serveErr = make(chan error, 1)
	go func() {
		if err := r.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogCritical("api server exited", err)
			r.serveErr <- err
		}
	}()
	r.obs.LogInfo("api listening",
		ports.Field{Key: "addr", Value: ln.Addr().String()},
		ports.Field{Key: "store", Value: r.samples.Name()})

	r.startMetrics()
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled or the API
// server fails, then shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		r.mu.Lock()
		closeErr := r.closeStores()
		r.mu.Unlock()
		return errors.Join(err, closeErr)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-r.serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, disconnects the collector and every
// viewer, and closes the stores.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}

	if r.httpSrv != nil {
		if err := r.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.collector != nil {
		if err := r.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.cancel != nil {
		r.cancel()
	}
	if err := r.broadcaster.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.fanoutDone != nil {
		<-r.fanoutDone
	}

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := r.closeStores(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (r *Runtime) closeStores() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Addr is the API listener address, useful when the config asks for port 0.
func (r *Runtime) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.httpLn == nil {
		return nil
	}
	return r.httpLn.Addr()
}

// Handler exposes the API for embedding in another server.
func (r *Runtime) Handler() http.Handler { return r.api.Handler() }

// Subscribe registers an in-process viewer, for example one built with
// NewChannelSubscriber.
func (r *Runtime) Subscribe(conn Conn) (*Subscription, error) {
	return r.broadcaster.Subscribe(conn)
}

// Submit ingests one reading without going through HTTP.
func (r *Runtime) Submit(ctx context.Context, deviceKey string, raw []byte) (StoredSample, error) {
	return r.ingest.Submit(ctx, deviceKey, raw)
}

func (r *Runtime) startMetrics() {
	r.gaugeStopCh = make(chan struct{})
	go r.recordGauges(r.gaugeStopCh, time.Second)

	if r.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	srv := r.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err)
		}
	}()
}

func (r *Runtime) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.MetricSubscribers, float64(r.broadcaster.Subscribers()))
			r.obs.SetGauge(ports.MetricFanoutQueueLen, float64(r.broadcaster.QueueLen()))
		}
	}
}
