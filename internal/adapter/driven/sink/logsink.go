// Package sink contains LeadSink adapters.
package sink

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LeadSink = (*LogSink)(nil)

// LogSink writes each lead to a structured logger. Field values are not
// logged, only their names.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Deliver logs the lead. It never fails.
func (s *LogSink) Deliver(ctx context.Context, lead model.Lead) error {
	names := make([]string, 0, len(lead.FieldData))
	for _, f := range lead.FieldData {
		names = append(names, f.Name)
	}
	s.logger.InfoContext(ctx, "lead received",
		"lead_id", lead.ID,
		"page_id", lead.PageID,
		"form_id", lead.FormID,
		"created_time", lead.CreatedTime,
		"platform", lead.Platform,
		"fields", names,
	)
	return nil
}
