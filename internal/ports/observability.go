package ports

const (
	MetricSamplesIngested = "monitoreo_samples_ingested_total"
	MetricIngestRejected  = "monitoreo_ingest_rejected_total"
	MetricFanoutDelivered = "monitoreo_fanout_delivered_total"
	MetricFanoutDropped   = "monitoreo_fanout_dropped_total"
	MetricAuthFailures    = "monitoreo_auth_failures_total"
	MetricSubscribers     = "monitoreo_subscribers"
	MetricFanoutQueueLen  = "monitoreo_fanout_queue_length"
	MetricStoreLatency    = "monitoreo_store_latency_seconds"
)

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordRejected(reason string, err error)
}

type Field struct {
	Key   string
	Value any
}

// NopObservability discards everything. Useful for tests and embedders that
// bring their own telemetry.
type NopObservability struct{}

func (NopObservability) LogDebug(string, ...Field)           {}
func (NopObservability) LogInfo(string, ...Field)            {}
func (NopObservability) LogError(string, error, ...Field)    {}
func (NopObservability) LogCritical(string, error, ...Field) {}
func (NopObservability) IncCounter(string, float64)          {}
func (NopObservability) ObserveLatency(string, float64)      {}
func (NopObservability) SetGauge(string, float64)            {}
func (NopObservability) RecordRejected(string, error)        {}

var _ Observability = NopObservability{}
