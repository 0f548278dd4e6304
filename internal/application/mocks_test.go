package application_test

import (
	"context"
	"sync"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
)

// --- Mock implementations ---

// mockGraphClient returns canned results. Every call is appended to calls so
// tests can assert on call order and on the absence of remote calls.
type mockGraphClient struct {
	mu    sync.Mutex
	calls []string

	exchangeCode      func(code, redirectURI string) (string, error)
	exchangeLongLived func(short string) (string, error)
	profile           func(token string) (*model.UserProfile, error)
	pages             func(token string) ([]model.Page, error)
	page              func(pageID, token string) (*model.Page, error)
	forms             func(pageID, token string) ([]model.Form, error)
	formFields        func(pageID, formID, token string) (*model.FormFields, error)
	lead              func(pageID, leadID, token string) (*model.Lead, error)
	subscribe         func(pageID, token string) error
	verifySub         func(pageID, token string) error
}

func (m *mockGraphClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockGraphClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockGraphClient) ExchangeCodeForToken(_ context.Context, code, redirectURI string) (string, error) {
	m.record("exchange_code")
	return m.exchangeCode(code, redirectURI)
}

func (m *mockGraphClient) ExchangeLongLivedToken(_ context.Context, short string) (string, error) {
	m.record("exchange_long_lived")
	return m.exchangeLongLived(short)
}

func (m *mockGraphClient) GetUserProfile(_ context.Context, token string) (*model.UserProfile, error) {
	m.record("get_user_profile")
	return m.profile(token)
}

func (m *mockGraphClient) GetPages(_ context.Context, token string) ([]model.Page, error) {
	m.record("get_pages")
	return m.pages(token)
}

func (m *mockGraphClient) GetPage(_ context.Context, pageID, token string) (*model.Page, error) {
	m.record("get_page:" + pageID)
	return m.page(pageID, token)
}

func (m *mockGraphClient) GetForms(_ context.Context, pageID, token string) ([]model.Form, error) {
	m.record("get_forms:" + pageID)
	return m.forms(pageID, token)
}

func (m *mockGraphClient) GetFormFields(_ context.Context, pageID, formID, token string) (*model.FormFields, error) {
	m.record("get_form_fields:" + formID)
	return m.formFields(pageID, formID, token)
}

func (m *mockGraphClient) GetLead(_ context.Context, pageID, leadID, token string) (*model.Lead, error) {
	m.record("get_lead:" + leadID)
	return m.lead(pageID, leadID, token)
}

func (m *mockGraphClient) SubscribePageToLeads(_ context.Context, pageID, token string) error {
	m.record("subscribe:" + pageID)
	return m.subscribe(pageID, token)
}

func (m *mockGraphClient) VerifyPageSubscription(_ context.Context, pageID, token string) error {
	m.record("verify_subscription:" + pageID)
	return m.verifySub(pageID, token)
}

// happyGraph answers the end-to-end example connection: short -> long token,
// Jane's profile and a single page that subscribes successfully.
func happyGraph() *mockGraphClient {
	return &mockGraphClient{
		exchangeCode:      func(_, _ string) (string, error) { return "short", nil },
		exchangeLongLived: func(_ string) (string, error) { return "long", nil },
		profile: func(_ string) (*model.UserProfile, error) {
			return &model.UserProfile{ID: "1", Name: "Jane"}, nil
		},
		pages: func(_ string) ([]model.Page, error) {
			return []model.Page{{ID: "10", Name: "Page", AccessToken: "pt"}}, nil
		},
		page: func(pageID, _ string) (*model.Page, error) {
			return &model.Page{ID: pageID, Name: "Page"}, nil
		},
		forms: func(_, _ string) ([]model.Form, error) {
			return []model.Form{{ID: "500", Name: "Promo"}}, nil
		},
		formFields: func(_, formID, _ string) (*model.FormFields, error) {
			return &model.FormFields{ID: formID, Questions: []model.FormQuestion{{Key: "email"}}}, nil
		},
		lead: func(_, leadID, _ string) (*model.Lead, error) {
			return &model.Lead{ID: leadID}, nil
		},
		subscribe: func(_, _ string) error { return nil },
		verifySub: func(_, _ string) error { return nil },
	}
}

// fakeStore is an in-memory CredentialStore. validate mimics the adapter's
// shape checks so ValidationError paths can be exercised.
type fakeStore struct {
	mu       sync.Mutex
	record   *model.CredentialRecord
	saves    int
	clears   int
	readErr  error
	validate func(model.CredentialRecord) error
}

var _ driven.CredentialStore = (*fakeStore)(nil)

func (s *fakeStore) UserAccessToken(ctx context.Context) (string, error) {
	r, err := s.Record(ctx)
	if err != nil || r == nil {
		return "", err
	}
	return r.UserAccessToken, nil
}

func (s *fakeStore) Pages(ctx context.Context) ([]model.PageCredential, error) {
	r, err := s.Record(ctx)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return []model.PageCredential{}, nil
	}
	return r.Pages, nil
}

func (s *fakeStore) Record(_ context.Context) (*model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.record == nil {
		return nil, nil
	}
	cp := *s.record
	cp.Pages = append([]model.PageCredential(nil), s.record.Pages...)
	return &cp, nil
}

func (s *fakeStore) Save(_ context.Context, record model.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validate != nil {
		if err := s.validate(record); err != nil {
			return err
		}
	}
	s.saves++
	cp := record
	cp.Pages = append([]model.PageCredential(nil), record.Pages...)
	s.record = &cp
	return nil
}

func (s *fakeStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.record = nil
	return nil
}

// storeWith returns a store that already holds one connected page.
func storeWith(userToken string, pages ...model.PageCredential) *fakeStore {
	return &fakeStore{record: &model.CredentialRecord{
		UserAccessToken: userToken,
		User:            model.UserProfile{ID: "1", Name: "Jane"},
		Pages:           pages,
		Mode:            model.ConnectionModeOAuth,
	}}
}

// recordingSink collects delivered leads.
type recordingSink struct {
	leads []model.Lead
	err   error
}

func (s *recordingSink) Deliver(_ context.Context, lead model.Lead) error {
	if s.err != nil {
		return s.err
	}
	s.leads = append(s.leads, lead)
	return nil
}
