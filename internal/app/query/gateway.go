package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// ErrInvalidDateRange is returned before the store is touched.
var ErrInvalidDateRange = errors.New("query: invalid date range")

// DefaultRecentLimit is how many samples Recent returns.
const DefaultRecentLimit = 50

type Config struct {
	RecentLimit int `yaml:"recent_limit"`
	// MaxRangeResults caps Range; 0 means unlimited.
	MaxRangeResults int `yaml:"max_range_results"`
}

type Gateway struct {
	store ports.SampleStore
	cfg   Config
	obs   ports.Observability
}

func NewGateway(store ports.SampleStore, cfg Config, obs ports.Observability) *Gateway {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	if cfg.MaxRangeResults < 0 {
		cfg.MaxRangeResults = 0
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Gateway{store: store, cfg: cfg, obs: obs}
}

// Recent returns the newest samples, newest first.
func (g *Gateway) Recent(ctx context.Context) ([]domain.StoredSample, error) {
	start := time.Now()
	out, err := g.store.QueryRecent(ctx, g.cfg.RecentLimit)
	g.obs.ObserveLatency(ports.MetricStoreLatency, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Range returns every sample with from <= timestamp <= to, newest first.
func (g *Gateway) Range(ctx context.Context, fromRaw, toRaw string) ([]domain.StoredSample, error) {
	from, to, err := ParseRange(fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := g.store.QueryRange(ctx, from, to, g.cfg.MaxRangeResults)
	g.obs.ObserveLatency(ports.MetricStoreLatency, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseRange validates both bounds as ISO-8601 instants.
func ParseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	fromRaw, toRaw = strings.TrimSpace(fromRaw), strings.TrimSpace(toRaw)
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: both from and to are required", ErrInvalidDateRange)
	}
	from, err := iso8601.ParseString(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %q", ErrInvalidDateRange, fromRaw)
	}
	to, err := iso8601.ParseString(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %q", ErrInvalidDateRange, toRaw)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from is after to", ErrInvalidDateRange)
	}
	return from.UTC(), to.UTC(), nil
}
