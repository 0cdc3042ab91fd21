package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

type PromObs struct {
	log      zerolog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	rejected *prometheus.CounterVec
}

// NewPromObs registers the service metrics on reg (the default registerer
// when nil) and logs through logger.
func NewPromObs(logger zerolog.Logger, reg prometheus.Registerer) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ingested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSamplesIngested,
		Help: "Samples persisted by the ingestion gateway.",
	})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricFanoutDelivered,
		Help: "Push events written to live subscribers.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricFanoutDropped,
		Help: "Push events lost to a full mailbox or a pruned subscriber.",
	})
	authFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricAuthFailures,
		Help: "Requests refused for a bad device key or session token.",
	})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricSubscribers,
		Help: "Currently connected push-channel viewers.",
	})
	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricFanoutQueueLen,
		Help: "Publish events waiting in the broadcaster mailbox.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricStoreLatency,
		Help:    "Latency of sample store operations.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricIngestRejected,
		Help: "Submissions refused before or during persistence, by reason.",
	}, []string{"reason"})

	reg.MustRegister(ingested, delivered, dropped, authFailures, subscribers, queueGauge, latency, rejected)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricSamplesIngested: ingested,
			ports.MetricFanoutDelivered: delivered,
			ports.MetricFanoutDropped:   dropped,
			ports.MetricAuthFailures:    authFailures,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricSubscribers:    subscribers,
			ports.MetricFanoutQueueLen: queueGauge,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricStoreLatency: latency,
		},
		rejected: rejected,
	}
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	withFields(p.log.Debug(), fields).Msg(msg)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.log.Info(), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	withFields(p.log.WithLevel(zerolog.FatalLevel).Err(err), fields).Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordRejected(reason string, err error) {
	p.rejected.WithLabelValues(reason).Inc()
	if err != nil {
		p.log.Warn().Str("reason", reason).Err(err).Msg("submission rejected")
	}
}

func withFields(e *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	return e
}

var _ ports.Observability = (*PromObs)(nil)
