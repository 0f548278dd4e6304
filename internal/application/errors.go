// Package application contains use-case orchestration services.
package application

import "errors"

var (
	// ErrInvalidState is returned when the OAuth callback state does not match
	// the nonce issued for the authorization request.
	ErrInvalidState = errors.New("invalid OAuth state")

	// ErrMissingCode is returned when the OAuth callback carries no code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrMissingAccessToken is returned when the code exchange succeeds but
	// Facebook sends no access_token.
	ErrMissingAccessToken = errors.New("facebook returned no access token")

	// ErrMissingToken is returned when an operation needs a stored user token
	// and none is configured.
	ErrMissingToken = errors.New("no Facebook access token configured")

	// ErrPageNotConnected is returned for page operations on a page that is
	// not part of the stored credential record.
	ErrPageNotConnected = errors.New("the Facebook page is not connected")

	// ErrInvalidPayload is returned when a webhook body cannot be parsed.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)
