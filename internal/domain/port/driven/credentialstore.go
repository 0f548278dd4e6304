package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// LEADSYNC_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set LEADSYNC_SECRET_KEY")

// ValidationError is returned by CredentialStore.Save when a record does not
// have the shape required for persistence. Nothing is written in that case.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid credential record: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CredentialStore defines the driven port for the per-installation credential
// record. The adapter encrypts tokens at rest; this interface operates on
// plaintext values at the domain boundary.
type CredentialStore interface {
	// UserAccessToken returns the stored user token, or "" if never connected.
	UserAccessToken(ctx context.Context) (string, error)

	// Pages returns the stored page credentials in their saved order.
	// Returns an empty slice if never connected.
	Pages(ctx context.Context) ([]model.PageCredential, error)

	// Record returns the full credential record, or nil if never connected.
	Record(ctx context.Context) (*model.CredentialRecord, error)

	// Save validates record and replaces the stored record with it in a single
	// write. Returns *ValidationError without writing if the shape is invalid.
	Save(ctx context.Context, record model.CredentialRecord) error

	// Clear removes the stored record. Clearing an absent record is not an error.
	Clear(ctx context.Context) error
}
