package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
	"github.com/ericfisherdev/leadsync/internal/metrics"
)

// leadgenWebhook is the body Facebook posts for page leadgen events.
type leadgenWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Time    int64  `json:"time"`
		Changes []struct {
			Field string                 `json:"field"`
			Value model.LeadNotification `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// LeadOutcome is the result of fetching and delivering one notified lead.
type LeadOutcome struct {
	LeadID string `json:"lead_id"`
	PageID string `json:"page_id"`
	Err    error  `json:"-"`
}

// LeadService fetches leads announced by webhooks and reads form metadata
// with the stored page tokens.
type LeadService struct {
	graph   driven.GraphClient
	store   driven.CredentialStore
	sink    driven.LeadSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLeadService creates a LeadService. m may be nil.
func NewLeadService(
	graph driven.GraphClient,
	store driven.CredentialStore,
	sink driven.LeadSink,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LeadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadService{
		graph:   graph,
		store:   store,
		sink:    sink,
		metrics: m,
		logger:  logger,
	}
}

// ParseNotifications extracts the leadgen changes from a webhook body.
// Changes for other fields and changes without a lead id are skipped.
func ParseNotifications(payload []byte) ([]model.LeadNotification, error) {
	var hook leadgenWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var out []model.LeadNotification
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			if change.Field != model.LeadgenField || change.Value.LeadID == "" {
				continue
			}
			n := change.Value
			if n.PageID == "" {
				n.PageID = entry.ID
			}
			out = append(out, n)
		}
	}
	return out, nil
}

// HandleWebhook fetches every lead named in payload and delivers it to the
// sink. Leads are handled one at a time in payload order and a failure only
// affects its own outcome. The error is non-nil only when the payload cannot
// be parsed or the stored pages cannot be read.
func (s *LeadService) HandleWebhook(ctx context.Context, payload []byte) ([]LeadOutcome, error) {
	notifications, err := ParseNotifications(payload)
	if err != nil {
		return nil, err
	}
	if len(notifications) == 0 {
		return []LeadOutcome{}, nil
	}

	pages, err := s.store.Pages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	tokens := make(map[string]string, len(pages))
	for _, p := range pages {
		tokens[p.ID] = p.AccessToken
	}

	outcomes := make([]LeadOutcome, 0, len(notifications))
	for _, n := range notifications {
		err := s.deliver(ctx, n, tokens)
		if err != nil {
			s.logger.Warn("lead delivery failed", "lead_id", n.LeadID, "page_id", n.PageID, "error", err)
			s.metrics.RecordLeadDelivery("failure")
		} else {
			s.metrics.RecordLeadDelivery("success")
		}
		outcomes = append(outcomes, LeadOutcome{LeadID: n.LeadID, PageID: n.PageID, Err: err})
	}
	return outcomes, nil
}

func (s *LeadService) deliver(ctx context.Context, n model.LeadNotification, tokens map[string]string) error {
	token, ok := tokens[n.PageID]
	if !ok {
		return fmt.Errorf("page %s: %w", n.PageID, ErrPageNotConnected)
	}

	lead, err := s.graph.GetLead(ctx, n.PageID, n.LeadID, token)
	if err != nil {
		return fmt.Errorf("get lead %s: %w", n.LeadID, err)
	}
	if lead.PageID == "" {
		lead.PageID = n.PageID
	}
	if lead.FormID == "" {
		lead.FormID = n.FormID
	}

	if err := s.sink.Deliver(ctx, *lead); err != nil {
		return fmt.Errorf("deliver lead %s: %w", n.LeadID, err)
	}
	return nil
}

// Forms lists the lead forms of a connected page.
func (s *LeadService) Forms(ctx context.Context, pageID string) ([]model.Form, error) {
	page, err := storedPage(ctx, s.store, pageID)
	if err != nil {
		return nil, err
	}
	return s.graph.GetForms(ctx, page.ID, page.AccessToken)
}

// FormFields returns the questions of one form on a connected page.
func (s *LeadService) FormFields(ctx context.Context, pageID, formID string) (*model.FormFields, error) {
	page, err := storedPage(ctx, s.store, pageID)
	if err != nil {
		return nil, err
	}
	return s.graph.GetFormFields(ctx, page.ID, formID, page.AccessToken)
}
