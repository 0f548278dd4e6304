package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
)

// VerificationService checks that stored credentials are still accepted by
// Facebook. It never writes to the store.
type VerificationService struct {
	graph driven.GraphClient
	store driven.CredentialStore
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(graph driven.GraphClient, store driven.CredentialStore) *VerificationService {
	return &VerificationService{graph: graph, store: store}
}

// VerifyTokens fetches the profile of the stored user token. Without a stored
// token it returns ErrMissingToken and makes no remote call.
func (s *VerificationService) VerifyTokens(ctx context.Context) (*model.UserProfile, error) {
	token, err := s.store.UserAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user token: %w", err)
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	return s.graph.GetUserProfile(ctx, token)
}

// VerifyPageToken checks a page token with a minimal page read. The token
// does not have to be stored, so it can be tested before a manual connection.
func (s *VerificationService) VerifyPageToken(ctx context.Context, pageID, pageToken string) (*model.Page, error) {
	return s.graph.GetPage(ctx, pageID, pageToken)
}

// VerifyPage checks that a connected page still has a leadgen subscription.
func (s *VerificationService) VerifyPage(ctx context.Context, pageID string) error {
	page, err := storedPage(ctx, s.store, pageID)
	if err != nil {
		return err
	}
	return s.graph.VerifyPageSubscription(ctx, page.ID, page.AccessToken)
}

// storedPage looks up the credential of a connected page.
func storedPage(ctx context.Context, store driven.CredentialStore, pageID string) (model.PageCredential, error) {
	record, err := store.Record(ctx)
	if err != nil {
		return model.PageCredential{}, fmt.Errorf("load pages: %w", err)
	}
	page, ok := record.Page(pageID)
	if !ok {
		return model.PageCredential{}, fmt.Errorf("page %s: %w", pageID, ErrPageNotConnected)
	}
	return page, nil
}
