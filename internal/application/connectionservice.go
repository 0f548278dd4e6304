package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
	"github.com/ericfisherdev/leadsync/internal/metrics"
)

// Scopes requested on the Facebook login dialog.
var Scopes = []string{
	"pages_show_list",
	"pages_manage_metadata",
	"pages_read_engagement",
	"leads_retrieval",
}

// OAuthApp is the Facebook app identity used to build login dialog URLs.
type OAuthApp struct {
	AppID       string
	AppSecret   string
	APIVersion  string
	RedirectURL string
}

// oauth2Config maps the app onto Facebook's versioned dialog and token endpoints.
func (a OAuthApp) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.AppID,
		ClientSecret: a.AppSecret,
		RedirectURL:  a.RedirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://www.facebook.com/" + a.APIVersion + "/dialog/oauth",
			TokenURL:  "https://graph.facebook.com/" + a.APIVersion + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// CallbackRequest carries the query parameters of the OAuth redirect together
// with the nonce the caller issued when the flow started.
type CallbackRequest struct {
	State         string
	ExpectedState string
	Code          string
	// RedirectURI must equal the redirect_uri used for the dialog. Empty means
	// the configured default.
	RedirectURI string
}

// ManualConnection is a connection entered by hand on the settings screen
// instead of through the login dialog.
type ManualConnection struct {
	UserAccessToken string `json:"user_access_token"`
	PageID          string `json:"page_id"`
	PageName        string `json:"page_name"`
	PageAccessToken string `json:"page_access_token"`
}

// ConnectionService drives the connection flows and owns the lifecycle of the
// stored credential record.
type ConnectionService struct {
	graph   driven.GraphClient
	store   driven.CredentialStore
	app     OAuthApp
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewConnectionService creates a ConnectionService. m may be nil.
func NewConnectionService(
	graph driven.GraphClient,
	store driven.CredentialStore,
	app OAuthApp,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ConnectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{
		graph:   graph,
		store:   store,
		app:     app,
		metrics: m,
		logger:  logger,
	}
}

// AuthorizationURL returns the Facebook login dialog URL for state.
func (s *ConnectionService) AuthorizationURL(state string) string {
	return s.app.oauth2Config().AuthCodeURL(state)
}

// Complete finishes an OAuth connection. Identity failures (state, code, token
// exchange, profile, page list, persistence) abort the flow and leave the
// store untouched. A failed long-lived exchange falls back to the short-lived
// token and a failed page subscription is recorded as Subscribed=false.
func (s *ConnectionService) Complete(ctx context.Context, req CallbackRequest) (*model.CredentialRecord, error) {
	record, err := s.complete(ctx, req)
	s.recordOutcome(model.ConnectionModeOAuth, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *ConnectionService) complete(ctx context.Context, req CallbackRequest) (*model.CredentialRecord, error) {
	if req.ExpectedState == "" || subtle.ConstantTimeCompare([]byte(req.State), []byte(req.ExpectedState)) != 1 {
		return nil, ErrInvalidState
	}
	if req.Code == "" {
		return nil, ErrMissingCode
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = s.app.RedirectURL
	}

	token, err := s.graph.ExchangeCodeForToken(ctx, req.Code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if token == "" {
		return nil, ErrMissingAccessToken
	}

	longLived, err := s.graph.ExchangeLongLivedToken(ctx, token)
	switch {
	case err != nil:
		s.logger.Warn("long-lived token exchange failed, keeping short-lived token", "error", err)
	case longLived == "":
		s.logger.Warn("long-lived token exchange returned no token, keeping short-lived token")
	default:
		token = longLived
	}

	profile, err := s.graph.GetUserProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}

	pages, err := s.graph.GetPages(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}

	outcomes := s.subscribePages(ctx, connectablePages(pages))

	record := model.CredentialRecord{
		UserAccessToken: token,
		User:            *profile,
		Pages:           make([]model.PageCredential, 0, len(outcomes)),
		Mode:            model.ConnectionModeOAuth,
	}
	for _, o := range outcomes {
		record.Pages = append(record.Pages, model.PageCredential{
			ID:          o.Page.ID,
			Name:        o.Page.Name,
			AccessToken: o.Page.AccessToken,
			Subscribed:  o.Subscribed(),
		})
	}

	if err := s.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	s.logger.Info("facebook account connected",
		"user_id", record.User.ID,
		"pages", len(record.Pages),
		"unsubscribed_pages", countUnsubscribed(outcomes),
	)

	return &record, nil
}

// connectablePages keeps pages that have both an id and a token, dropping
// repeated ids, in the order the platform listed them.
func connectablePages(pages []model.Page) []model.Page {
	seen := make(map[string]struct{}, len(pages))
	out := make([]model.Page, 0, len(pages))
	for _, p := range pages {
		if p.ID == "" || p.AccessToken == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// subscribePages subscribes each page in turn. A failure only marks that page.
func (s *ConnectionService) subscribePages(ctx context.Context, pages []model.Page) []model.SubscriptionOutcome {
	outcomes := make([]model.SubscriptionOutcome, 0, len(pages))
	for _, page := range pages {
		err := s.graph.SubscribePageToLeads(ctx, page.ID, page.AccessToken)
		if err != nil {
			s.logger.Warn("page leadgen subscription failed", "page_id", page.ID, "error", err)
		}
		outcomes = append(outcomes, model.SubscriptionOutcome{Page: page, Err: err})
	}
	return outcomes
}

func countUnsubscribed(outcomes []model.SubscriptionOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Subscribed() {
			n++
		}
	}
	return n
}

// ConnectManually stores a single-page connection from hand-entered tokens.
// Both tokens are checked against Facebook before anything is written. The
// leadgen subscription is only checked, not created.
func (s *ConnectionService) ConnectManually(ctx context.Context, in ManualConnection) (*model.CredentialRecord, error) {
	record, err := s.connectManually(ctx, in)
	s.recordOutcome(model.ConnectionModeManual, err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *ConnectionService) connectManually(ctx context.Context, in ManualConnection) (*model.CredentialRecord, error) {
	if in.UserAccessToken == "" {
		return nil, ErrMissingToken
	}
	if in.PageID == "" || in.PageAccessToken == "" {
		return nil, &driven.ValidationError{Err: errors.New("page id and page access token are required")}
	}

	profile, err := s.graph.GetUserProfile(ctx, in.UserAccessToken)
	if err != nil {
		return nil, fmt.Errorf("verify user token: %w", err)
	}

	page, err := s.graph.GetPage(ctx, in.PageID, in.PageAccessToken)
	if err != nil {
		return nil, fmt.Errorf("verify page token: %w", err)
	}

	name := in.PageName
	if name == "" {
		name = page.Name
	}

	subscribed := true
	if err := s.graph.VerifyPageSubscription(ctx, in.PageID, in.PageAccessToken); err != nil {
		subscribed = false
		s.logger.Warn("manually connected page is not subscribed to leadgen", "page_id", in.PageID, "error", err)
	}

	record := model.CredentialRecord{
		UserAccessToken: in.UserAccessToken,
		User:            *profile,
		Pages: []model.PageCredential{{
			ID:          in.PageID,
			Name:        name,
			AccessToken: in.PageAccessToken,
			Subscribed:  subscribed,
		}},
		Mode: model.ConnectionModeManual,
	}

	if err := s.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	s.logger.Info("facebook page connected manually", "user_id", record.User.ID, "page_id", in.PageID)
	return &record, nil
}

// Disconnect removes the stored credential record.
func (s *ConnectionService) Disconnect(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.Info("facebook account disconnected")
	return nil
}

// Status returns the stored credential record, or nil when disconnected.
func (s *ConnectionService) Status(ctx context.Context) (*model.CredentialRecord, error) {
	record, err := s.store.Record(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return record, nil
}

func (s *ConnectionService) recordOutcome(mode model.ConnectionMode, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		s.logger.Error("facebook connection failed", "mode", string(mode), "error", err)
	}
	s.metrics.RecordConnection(string(mode), outcome)
}
