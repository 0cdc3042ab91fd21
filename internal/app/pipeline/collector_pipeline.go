package pipeline

import (
	"context"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// SubmissionHandler takes one submission through authentication, decoding,
// storage and broadcast.
type SubmissionHandler interface {
	HandleSubmission(ctx context.Context, sub *domain.Submission) error
}

// RunCollectorPipeline starts col and forwards everything it emits to h
// until ctx is done. Rejected submissions are logged and skipped; the
// collector has nobody to report them to.
func RunCollectorPipeline(ctx context.Context, col ports.Collector, h SubmissionHandler, buffer int, obs ports.Observability) error {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *domain.Submission, buffer)

	if err := col.Start(ch); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sub := <-ch:
				if sub == nil {
					continue
				}
				if err := h.HandleSubmission(ctx, sub); err != nil {
					obs.LogDebug("collector submission rejected",
						ports.Field{Key: "transport", Value: sub.Transport},
						ports.Field{Key: "error", Value: err.Error()})
				}
			}
		}
	}()

	return nil
}
