package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{BrokerURL: "mqtt://localhost:1883"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mediciones", cfg.Topic)
	assert.Equal(t, "x-api-key", cfg.KeyProperty)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, uint16(30), cfg.KeepAlive)

	missing := Config{}
	missing.ApplyDefaults()
	assert.Error(t, missing.Validate())

	badQoS := Config{BrokerURL: "mqtt://localhost:1883", QoS: 3}
	assert.Error(t, badQoS.Validate())
}

func TestNewCollectorRejectsInvalidConfig(t *testing.T) {
	_, err := NewCollector(Config{}, nil)
	assert.Error(t, err)
}

func TestSubmissionFromPublish(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := &paho.Publish{
		Topic:   "mediciones",
		Payload: []byte(`{"voltaje":3.7}`),
		Properties: &paho.PublishProperties{
			User: paho.UserProperties{{Key: "x-api-key", Value: "k1"}},
		},
	}

	sub := SubmissionFromPublish(msg, "x-api-key", now)
	assert.Equal(t, &domain.Submission{
		DeviceKey:  "k1",
		Body:       []byte(`{"voltaje":3.7}`),
		ReceivedAt: now,
		Transport:  TransportName,
	}, sub)

	bare := SubmissionFromPublish(&paho.Publish{Payload: []byte(`{}`)}, "x-api-key", now)
	assert.Empty(t, bare.DeviceKey)
}

func TestHandleForwardsToOutput(t *testing.T) {
	c, err := NewCollector(Config{BrokerURL: "mqtt://localhost:1883"}, nil)
	require.NoError(t, err)

	out := make(chan *domain.Submission, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.ctx, c.out = ctx, out

	c.handle(&paho.Publish{
		Payload:    []byte(`{"voltaje":1,"corriente":1,"temperatura":1}`),
		Properties: &paho.PublishProperties{User: paho.UserProperties{{Key: "x-api-key", Value: "k1"}}},
	})

	select {
	case sub := <-out:
		assert.Equal(t, "k1", sub.DeviceKey)
		assert.Equal(t, TransportName, sub.Transport)
	case <-time.After(time.Second):
		t.Fatal("submission not forwarded")
	}
}

func TestHandleBeforeStartIsIgnored(t *testing.T) {
	c, err := NewCollector(Config{BrokerURL: "mqtt://localhost:1883"}, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { c.handle(&paho.Publish{}) })
	assert.NoError(t, c.Stop())
}
