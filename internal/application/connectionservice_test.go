package application_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/leadsync/internal/application"
	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
	"github.com/ericfisherdev/leadsync/internal/metrics"
)

var testApp = application.OAuthApp{
	AppID:       "app-1",
	AppSecret:   "secret-1",
	APIVersion:  "v18.0",
	RedirectURL: "https://example.com/api/v1/integration/facebook-lead-ads/oauth",
}

func newConnectionService(graph driven.GraphClient, store driven.CredentialStore) *application.ConnectionService {
	return application.NewConnectionService(graph, store, testApp, nil, nil)
}

func validCallback() application.CallbackRequest {
	return application.CallbackRequest{State: "abc", ExpectedState: "abc", Code: "xyz"}
}

func TestComplete_EndToEnd(t *testing.T) {
	graph := happyGraph()
	graph.exchangeCode = func(code, redirectURI string) (string, error) {
		assert.Equal(t, "xyz", code)
		assert.Equal(t, testApp.RedirectURL, redirectURI)
		return "short", nil
	}
	store := &fakeStore{}
	svc := newConnectionService(graph, store)

	record, err := svc.Complete(context.Background(), validCallback())

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, store.saves)

	stored, err := store.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "long", stored.UserAccessToken)
	assert.Equal(t, model.UserProfile{ID: "1", Name: "Jane"}, stored.User)
	assert.Equal(t, []model.PageCredential{{ID: "10", Name: "Page", AccessToken: "pt", Subscribed: true}}, stored.Pages)
	assert.Equal(t, model.ConnectionModeOAuth, stored.Mode)

	assert.Equal(t, []string{
		"exchange_code",
		"exchange_long_lived",
		"get_user_profile",
		"get_pages",
		"subscribe:10",
	}, graph.Calls())
}

func TestComplete_UsesLongLivedTokenDownstream(t *testing.T) {
	graph := happyGraph()
	var profileToken, pagesToken string
	graph.profile = func(token string) (*model.UserProfile, error) {
		profileToken = token
		return &model.UserProfile{ID: "1", Name: "Jane"}, nil
	}
	graph.pages = func(token string) ([]model.Page, error) {
		pagesToken = token
		return nil, nil
	}

	_, err := newConnectionService(graph, &fakeStore{}).Complete(context.Background(), validCallback())

	require.NoError(t, err)
	assert.Equal(t, "long", profileToken)
	assert.Equal(t, "long", pagesToken)
}

func TestComplete_ExplicitRedirectURI(t *testing.T) {
	graph := happyGraph()
	graph.exchangeCode = func(_, redirectURI string) (string, error) {
		assert.Equal(t, "https://other.example.com/cb", redirectURI)
		return "short", nil
	}
	req := validCallback()
	req.RedirectURI = "https://other.example.com/cb"

	_, err := newConnectionService(graph, &fakeStore{}).Complete(context.Background(), req)

	require.NoError(t, err)
}

func TestComplete_RejectsBadInputBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name    string
		req     application.CallbackRequest
		wantErr error
	}{
		{
			name:    "state mismatch",
			req:     application.CallbackRequest{State: "abc", ExpectedState: "def", Code: "xyz"},
			wantErr: application.ErrInvalidState,
		},
		{
			name:    "no expected state",
			req:     application.CallbackRequest{State: "", ExpectedState: "", Code: "xyz"},
			wantErr: application.ErrInvalidState,
		},
		{
			name:    "missing code",
			req:     application.CallbackRequest{State: "abc", ExpectedState: "abc"},
			wantErr: application.ErrMissingCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := happyGraph()
			store := &fakeStore{}

			_, err := newConnectionService(graph, store).Complete(context.Background(), tt.req)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, graph.Calls())
			assert.Zero(t, store.saves)
		})
	}
}

func TestComplete_FatalFailuresLeaveStoreUntouched(t *testing.T) {
	remoteErr := &driven.APIError{StatusCode: 400, Message: "Invalid OAuth access token"}

	tests := []struct {
		name    string
		mutate  func(g *mockGraphClient)
		wantErr error
	}{
		{
			name: "code exchange fails",
			mutate: func(g *mockGraphClient) {
				g.exchangeCode = func(_, _ string) (string, error) { return "", remoteErr }
			},
			wantErr: remoteErr,
		},
		{
			name: "code exchange returns no token",
			mutate: func(g *mockGraphClient) {
				g.exchangeCode = func(_, _ string) (string, error) { return "", nil }
			},
			wantErr: application.ErrMissingAccessToken,
		},
		{
			name: "profile fetch fails",
			mutate: func(g *mockGraphClient) {
				g.profile = func(_ string) (*model.UserProfile, error) { return nil, remoteErr }
			},
			wantErr: remoteErr,
		},
		{
			name: "page list fails",
			mutate: func(g *mockGraphClient) {
				g.pages = func(_ string) ([]model.Page, error) {
					return nil, &driven.TransportError{Op: "GET /me/accounts", Err: context.DeadlineExceeded}
				}
			},
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := happyGraph()
			tt.mutate(graph)

			previous := storeWith("previous", model.PageCredential{ID: "77", AccessToken: "old"})
			before, err := previous.Record(context.Background())
			require.NoError(t, err)

			_, err = newConnectionService(graph, previous).Complete(context.Background(), validCallback())

			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, previous.saves)
			after, err := previous.Record(context.Background())
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestComplete_LongLivedExchangeFailureKeepsShortToken(t *testing.T) {
	tests := []struct {
		name     string
		exchange func(string) (string, error)
	}{
		{
			name: "exchange error",
			exchange: func(string) (string, error) {
				return "", &driven.APIError{StatusCode: 400, Message: "nope"}
			},
		},
		{
			name:     "exchange returns no token",
			exchange: func(string) (string, error) { return "", nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := happyGraph()
			graph.exchangeLongLived = tt.exchange
			store := &fakeStore{}

			_, err := newConnectionService(graph, store).Complete(context.Background(), validCallback())

			require.NoError(t, err)
			token, err := store.UserAccessToken(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "short", token)
		})
	}
}

func TestComplete_FiltersPagesWithoutIDOrToken(t *testing.T) {
	graph := happyGraph()
	graph.pages = func(string) ([]model.Page, error) {
		return []model.Page{
			{ID: "10", Name: "A", AccessToken: "pt-a"},
			{ID: "", Name: "No id", AccessToken: "pt-x"},
			{ID: "12", Name: "No token"},
			{ID: "13", Name: "C", AccessToken: "pt-c"},
			{ID: "10", Name: "A again", AccessToken: "pt-a2"},
		}, nil
	}
	store := &fakeStore{}

	record, err := newConnectionService(graph, store).Complete(context.Background(), validCallback())

	require.NoError(t, err)
	require.Len(t, record.Pages, 2)
	assert.Equal(t, "10", record.Pages[0].ID)
	assert.Equal(t, "pt-a", record.Pages[0].AccessToken)
	assert.Equal(t, "13", record.Pages[1].ID)
	assert.NotContains(t, graph.Calls(), "subscribe:12")
}

func TestComplete_SubscriptionFailureIsNotFatal(t *testing.T) {
	graph := happyGraph()
	graph.pages = func(string) ([]model.Page, error) {
		return []model.Page{
			{ID: "P", Name: "Failing", AccessToken: "pt-p"},
			{ID: "Q", Name: "Working", AccessToken: "pt-q"},
		}, nil
	}
	graph.subscribe = func(pageID, _ string) error {
		if pageID == "P" {
			return &driven.APIError{StatusCode: 403, Message: "(#200) Requires pages_manage_metadata permission"}
		}
		return nil
	}
	store := &fakeStore{}

	_, err := newConnectionService(graph, store).Complete(context.Background(), validCallback())

	require.NoError(t, err)
	pages, err := store.Pages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.PageCredential{
		{ID: "P", Name: "Failing", AccessToken: "pt-p", Subscribed: false},
		{ID: "Q", Name: "Working", AccessToken: "pt-q", Subscribed: true},
	}, pages)

	calls := graph.Calls()
	assert.Equal(t, []string{"subscribe:P", "subscribe:Q"}, calls[len(calls)-2:])
}

func TestComplete_ValidationErrorIsFatal(t *testing.T) {
	store := storeWith("previous")
	store.validate = func(model.CredentialRecord) error {
		return &driven.ValidationError{Err: errors.New("User.Name is required")}
	}

	_, err := newConnectionService(happyGraph(), store).Complete(context.Background(), validCallback())

	var validationErr *driven.ValidationError
	require.ErrorAs(t, err, &validationErr)
	token, err := store.UserAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "previous", token)
}

func TestComplete_RecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics("test")
	svc := application.NewConnectionService(happyGraph(), &fakeStore{}, testApp, m, nil)

	_, err := svc.Complete(context.Background(), validCallback())
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), application.CallbackRequest{})
	require.Error(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "test_connection_attempts_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			var mode, outcome string
			for _, l := range metric.GetLabel() {
				switch l.GetName() {
				case "mode":
					mode = l.GetValue()
				case "outcome":
					outcome = l.GetValue()
				}
			}
			got[mode+"/"+outcome] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"oauth/success": 1, "oauth/failure": 1}, got)
}

func TestAuthorizationURL(t *testing.T) {
	svc := newConnectionService(happyGraph(), &fakeStore{})

	raw := svc.AuthorizationURL("nonce-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.facebook.com", u.Host)
	assert.Equal(t, "/v18.0/dialog/oauth", u.Path)
	q := u.Query()
	assert.Equal(t, "app-1", q.Get("client_id"))
	assert.Equal(t, testApp.RedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, "nonce-1", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	for _, scope := range application.Scopes {
		assert.Contains(t, strings.Fields(q.Get("scope")), scope)
	}
	assert.NotContains(t, raw, "secret-1")
}

func TestConnectManually(t *testing.T) {
	graph := happyGraph()
	store := &fakeStore{}
	svc := newConnectionService(graph, store)

	record, err := svc.ConnectManually(context.Background(), application.ManualConnection{
		UserAccessToken: "user-token",
		PageID:          "10",
		PageAccessToken: "pt",
	})

	require.NoError(t, err)
	assert.Equal(t, model.ConnectionModeManual, record.Mode)
	assert.Equal(t, "user-token", record.UserAccessToken)
	assert.Equal(t, []model.PageCredential{{ID: "10", Name: "Page", AccessToken: "pt", Subscribed: true}}, record.Pages)
	assert.Equal(t, []string{"get_user_profile", "get_page:10", "verify_subscription:10"}, graph.Calls())
	assert.Equal(t, 1, store.saves)
}

func TestConnectManually_KeepsGivenPageName(t *testing.T) {
	record, err := newConnectionService(happyGraph(), &fakeStore{}).ConnectManually(context.Background(), application.ManualConnection{
		UserAccessToken: "user-token",
		PageID:          "10",
		PageName:        "My shop",
		PageAccessToken: "pt",
	})

	require.NoError(t, err)
	assert.Equal(t, "My shop", record.Pages[0].Name)
}

func TestConnectManually_UnsubscribedPage(t *testing.T) {
	graph := happyGraph()
	graph.verifySub = func(_, _ string) error { return driven.ErrMissingSubscription }

	record, err := newConnectionService(graph, &fakeStore{}).ConnectManually(context.Background(), application.ManualConnection{
		UserAccessToken: "user-token",
		PageID:          "10",
		PageAccessToken: "pt",
	})

	require.NoError(t, err)
	assert.False(t, record.Pages[0].Subscribed)
}

func TestConnectManually_Rejections(t *testing.T) {
	remoteErr := &driven.APIError{StatusCode: 400, Message: "Invalid OAuth access token"}

	tests := []struct {
		name      string
		in        application.ManualConnection
		mutate    func(g *mockGraphClient)
		wantErr   error
		wantCalls int
	}{
		{
			name:    "no user token",
			in:      application.ManualConnection{PageID: "10", PageAccessToken: "pt"},
			wantErr: application.ErrMissingToken,
		},
		{
			name: "bad user token",
			in:   application.ManualConnection{UserAccessToken: "u", PageID: "10", PageAccessToken: "pt"},
			mutate: func(g *mockGraphClient) {
				g.profile = func(string) (*model.UserProfile, error) { return nil, remoteErr }
			},
			wantErr:   remoteErr,
			wantCalls: 1,
		},
		{
			name: "bad page token",
			in:   application.ManualConnection{UserAccessToken: "u", PageID: "10", PageAccessToken: "pt"},
			mutate: func(g *mockGraphClient) {
				g.page = func(_, _ string) (*model.Page, error) { return nil, remoteErr }
			},
			wantErr:   remoteErr,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := happyGraph()
			if tt.mutate != nil {
				tt.mutate(graph)
			}
			store := &fakeStore{}

			_, err := newConnectionService(graph, store).ConnectManually(context.Background(), tt.in)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, graph.Calls(), tt.wantCalls)
			assert.Zero(t, store.saves)
		})
	}
}

func TestConnectManually_MissingPageFields(t *testing.T) {
	graph := happyGraph()

	_, err := newConnectionService(graph, &fakeStore{}).ConnectManually(context.Background(), application.ManualConnection{
		UserAccessToken: "u",
		PageID:          "10",
	})

	var validationErr *driven.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, graph.Calls())
}

func TestDisconnectAndStatus(t *testing.T) {
	store := storeWith("long", model.PageCredential{ID: "10", AccessToken: "pt"})
	svc := newConnectionService(happyGraph(), store)
	ctx := context.Background()

	record, err := svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "long", record.UserAccessToken)

	require.NoError(t, svc.Disconnect(ctx))
	assert.Equal(t, 1, store.clears)

	record, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, record)
}
