package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
)

// ErrMissingSubscription is returned when a page has no app subscription
// that includes the leadgen field.
var ErrMissingSubscription = errors.New("the Facebook page is not subscribed to leadgen events")

// TransportError means the request to the Graph API could not be completed
// (DNS, connection, timeout, cancelled context).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError means the Graph API answered with a non-2xx status (or a body that
// could not be read as a JSON object). Message is the remote error.message
// when one was present.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       int
}

func (e *APIError) Error() string {
	return e.Message
}

// GraphClient defines the driven port for the Facebook Graph API. Every method
// performs exactly one request and never retries.
type GraphClient interface {
	// OAuth

	// ExchangeCodeForToken trades an authorization code for a short-lived user
	// token. The returned token may be empty if Facebook omitted it.
	ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (string, error)
	// ExchangeLongLivedToken trades a short-lived user token for a long-lived one.
	ExchangeLongLivedToken(ctx context.Context, shortLivedToken string) (string, error)

	// Read methods

	GetUserProfile(ctx context.Context, accessToken string) (*model.UserProfile, error)
	GetPages(ctx context.Context, accessToken string) ([]model.Page, error)
	// GetPage fetches only id and name; used to prove a page token works.
	GetPage(ctx context.Context, pageID, pageToken string) (*model.Page, error)
	GetForms(ctx context.Context, pageID, pageToken string) ([]model.Form, error)
	GetFormFields(ctx context.Context, pageID, formID, pageToken string) (*model.FormFields, error)
	GetLead(ctx context.Context, pageID, leadID, pageToken string) (*model.Lead, error)

	// Subscriptions

	SubscribePageToLeads(ctx context.Context, pageID, pageToken string) error
	// VerifyPageSubscription returns ErrMissingSubscription when no app
	// subscription on the page lists the leadgen field.
	VerifyPageSubscription(ctx context.Context, pageID, pageToken string) error
}
