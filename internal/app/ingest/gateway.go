package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

var (
	ErrUnauthorized   = errors.New("ingest: invalid device key")
	ErrStorageFailure = errors.New("ingest: sample could not be stored")
)

// KeyVerifier checks the device credential.
type KeyVerifier interface {
	Verify(presented string) bool
}

// Publisher receives every sample after it has been stored.
type Publisher interface {
	Publish(ctx context.Context, s *domain.StoredSample) error
}

// Gateway is the single entry point for device readings, whatever the
// transport.
type Gateway struct {
	keys  KeyVerifier
	store ports.SampleStore
	pub   Publisher
	obs   ports.Observability
}

func NewGateway(keys KeyVerifier, store ports.SampleStore, pub Publisher, obs ports.Observability) *Gateway {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Gateway{keys: keys, store: store, pub: pub, obs: obs}
}

// Submit authenticates, decodes, stores and then publishes one reading.
// Nothing is published unless the insert succeeded.
func (g *Gateway) Submit(ctx context.Context, deviceKey string, raw []byte) (domain.StoredSample, error) {
	if !g.keys.Verify(deviceKey) {
		g.obs.IncCounter(ports.MetricAuthFailures, 1)
		g.obs.RecordRejected("unauthorized", ErrUnauthorized)
		return domain.StoredSample{}, ErrUnauthorized
	}

	s, err := DecodeSample(raw)
	if err != nil {
		g.obs.RecordRejected("invalid", err)
		return domain.StoredSample{}, err
	}

	start := time.Now()
	rec, err := g.store.Insert(ctx, s)
	g.obs.ObserveLatency(ports.MetricStoreLatency, time.Since(start).Seconds())
	if err != nil {
		g.obs.LogError("sample insert failed", err, ports.Field{Key: "store", Value: g.store.Name()})
		g.obs.RecordRejected("storage", err)
		return domain.StoredSample{}, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	g.obs.IncCounter(ports.MetricSamplesIngested, 1)

	if g.pub != nil {
		out := rec
		if err := g.pub.Publish(ctx, &out); err != nil {
			// The sample is durable; live viewers just miss it.
			g.obs.LogError("sample publish failed", err, ports.Field{Key: "id", Value: rec.ID})
		}
	}
	return rec, nil
}

// HandleSubmission adapts a transport-level submission (MQTT) to Submit.
func (g *Gateway) HandleSubmission(ctx context.Context, sub *domain.Submission) error {
	rec, err := g.Submit(ctx, sub.DeviceKey, sub.Body)
	if err != nil {
		return err
	}
	g.obs.LogDebug("sample ingested",
		ports.Field{Key: "id", Value: rec.ID},
		ports.Field{Key: "transport", Value: sub.Transport})
	return nil
}
