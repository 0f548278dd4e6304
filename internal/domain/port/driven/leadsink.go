package driven

import (
	"context"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
)

// LeadSink receives fetched leads for the downstream automation engine.
type LeadSink interface {
	Deliver(ctx context.Context, lead model.Lead) error
}
