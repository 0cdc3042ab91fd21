package ports

import "github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"

// Collector streams device submissions from a non-HTTP transport (MQTT,
// simulators, etc.) into the ingestion pipeline.
type Collector interface {
	Start(out chan<- *domain.Submission) error
	Stop() error
}
