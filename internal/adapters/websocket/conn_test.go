package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

func serve(t *testing.T) (*websocket.Conn, <-chan *Conn) {
	t.Helper()
	up := NewUpgrader(Config{})
	conns := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r)
		if err != nil {
			return
		}
		conns <- c
		c.ReadLoop()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, conns
}

func TestSendWritesOneJSONFramePerSample(t *testing.T) {
	client, conns := serve(t)
	server := <-conns

	rec := &domain.StoredSample{
		ID: 9,
		Sample: domain.Sample{
			Voltage:     domain.Float(3.7),
			Current:     domain.Float(120),
			Temperature: domain.Float(25.1),
			Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, server.Send(context.Background(), rec))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, 9.0, got["id"])
	assert.Equal(t, 3.7, got["voltaje"])
	assert.Nil(t, got["bateria"])
	assert.Contains(t, got, "bateria")
	assert.Equal(t, "2024-05-01T12:00:00Z", got["timestamp"])

	var decoded domain.StoredSample
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, *rec, decoded)
}

func TestPeerCloseSignalsDone(t *testing.T) {
	client, conns := serve(t)
	server := <-conns

	require.NoError(t, client.Close())

	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after peer went away")
	}
	assert.ErrorIs(t, server.Send(context.Background(), &domain.StoredSample{}), ErrConnClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	_, conns := serve(t)
	server := <-conns

	_ = server.Close()
	assert.NotPanics(t, func() { _ = server.Close() })
	<-server.Done()
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{PongWait: 10 * time.Second, PingPeriod: time.Minute}
	cfg.ApplyDefaults()
	assert.Equal(t, 9*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, int64(4096), cfg.ReadLimitBytes)
}
