package monitoreo

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	raw := `
server:
  addr: "127.0.0.1:0"
auth:
  device_key: "esp32-key"
  session_secret: "runtime-test-secret-0123"
  bcrypt_cost: 4
store:
  driver: sqlite
  sqlite:
    path: "` + filepath.Join(t.TempDir(), "monitoreo.db") + `"
metrics:
  addr: "127.0.0.1:0"
`
	cfg, err := ParseConfig([]byte(raw))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	cfg := testConfig(t)

	samplesStub := &stubSampleStore{}
	accountsStub := &stubAccountStore{}
	collectorStub := &stubCollector{}
	obsStub := ports.NopObservability{}

	rt, err := NewRuntime(
		cfg,
		WithSampleStore(samplesStub),
		WithAccountStore(accountsStub),
		WithCollector(collectorStub),
		WithObservability(obsStub),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	if rt.samples != samplesStub {
		t.Fatalf("expected custom sample store to be used")
	}
	if rt.accounts != accountsStub {
		t.Fatalf("expected custom account store to be used")
	}
	if rt.collector != collectorStub {
		t.Fatalf("expected custom collector to be used")
	}
	if rt.obs != obsStub {
		t.Fatalf("expected custom observability to be used")
	}
	if len(rt.closers) != 0 {
		t.Fatalf("expected no store to be opened when both are provided")
	}
}

func TestNewRuntimeRequiresConfig(t *testing.T) {
	if _, err := NewRuntime(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestRuntimeIngestsOverHTTPAndPushesInProcess(t *testing.T) {
	cfg := testConfig(t)
	rt, err := NewRuntime(cfg, WithObservability(ports.NopObservability{}))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown returned error: %v", err)
		}
	}()

	conn, ch, closeFn := NewChannelSubscriber(4)
	defer closeFn()
	if _, err := rt.Subscribe(conn); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	url := "http://" + rt.Addr().String() + "/api/mediciones"
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(`{"voltaje":3.7,"corriente":120,"temperatura":25.1,"bateria":3.9}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("x-api-key", "esp32-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post sample: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	select {
	case got := <-ch:
		if got.ID == 0 || got.Voltage == nil || *got.Voltage != 3.7 || got.Power != nil {
			t.Fatalf("unexpected pushed sample: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed sample")
	}

	if _, err := rt.Submit(context.Background(), "wrong", []byte(`{}`)); err == nil {
		t.Fatalf("expected in-process submit with a bad key to fail")
	}
}

func TestRuntimeRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	rt, err := NewRuntime(cfg, WithObservability(ports.NopObservability{}))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rt.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRuntimeRunClosesStoresWhenStartFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.Addr = busy.Addr().String()
	rt, err := NewRuntime(cfg, WithObservability(ports.NopObservability{}))
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	closer := &countingCloser{}
	rt.closers = append(rt.closers, closer)

	if err := rt.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error on an occupied address")
	}
	if closer.calls != 1 {
		t.Fatalf("expected stores closed once, got %d", closer.calls)
	}
	if len(rt.closers) != 0 {
		t.Fatalf("expected no stores left open, got %d", len(rt.closers))
	}
}

type countingCloser struct{ calls int }

func (c *countingCloser) Close() error {
	c.calls++
	return nil
}

type stubSampleStore struct{}

func (s *stubSampleStore) Insert(context.Context, Sample) (StoredSample, error) {
	return StoredSample{}, nil
}
func (s *stubSampleStore) QueryRecent(context.Context, int) ([]StoredSample, error) { return nil, nil }
func (s *stubSampleStore) QueryRange(context.Context, time.Time, time.Time, int) ([]StoredSample, error) {
	return nil, nil
}
func (s *stubSampleStore) Name() string { return "stub" }

type stubAccountStore struct{}

func (s *stubAccountStore) CreateAccount(context.Context, string, []byte) (Account, error) {
	return Account{}, nil
}
func (s *stubAccountStore) FindAccountByEmail(context.Context, string) (Account, error) {
	return Account{}, ports.ErrAccountNotFound
}

type stubCollector struct{}

func (s *stubCollector) Start(chan<- *Submission) error { return nil }
func (s *stubCollector) Stop() error                    { return nil }
