package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/leadsync/internal/application"
	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
)

// Machine-readable codes carried in every JSON error body.
const (
	codeSuccess             = "rest_success"
	codeInvalidData         = "rest_invalid_data"
	codeMissingToken        = "missing_token"
	codePageNotConnected    = "page_not_connected"
	codeInvalidState        = "invalid_state"
	codeMissingCode         = "missing_code"
	codeValidation          = "validation_failed"
	codeMissingSubscription = "missing_subscription"
	codeFacebookHTTP        = "facebook_http_error"
	codeTransport           = "transport_error"
	codeEncryptionKey       = "encryption_key_not_set"
	codeInternal            = "internal_error"
	codeUnauthorized        = "unauthorized"
	codeInvalidSignature    = "invalid_signature"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal_error","message":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code, code
// and message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// classify maps a service error to an HTTP status, an error code and a
// message that is safe to show to the user.
func classify(err error) (int, string, string) {
	var (
		apiErr        *driven.APIError
		transportErr  *driven.TransportError
		validationErr *driven.ValidationError
	)

	switch {
	case errors.Is(err, application.ErrMissingToken):
		return http.StatusNotFound, codeMissingToken, application.ErrMissingToken.Error()
	case errors.Is(err, application.ErrPageNotConnected):
		return http.StatusNotFound, codePageNotConnected, application.ErrPageNotConnected.Error()
	case errors.Is(err, application.ErrInvalidState):
		return http.StatusBadRequest, codeInvalidState, "Invalid OAuth state. Please try connecting again."
	case errors.Is(err, application.ErrMissingCode):
		return http.StatusBadRequest, codeMissingCode, "Facebook did not return an authorization code."
	case errors.Is(err, application.ErrInvalidPayload):
		return http.StatusBadRequest, codeInvalidData, "Invalid JSON payload."
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, codeValidation, validationErr.Error()
	case errors.Is(err, driven.ErrMissingSubscription):
		return http.StatusConflict, codeMissingSubscription, driven.ErrMissingSubscription.Error()
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, codeFacebookHTTP, apiErr.Message
	case errors.Is(err, application.ErrMissingAccessToken):
		return http.StatusBadGateway, codeFacebookHTTP, "Facebook did not return an access token."
	case errors.As(err, &transportErr):
		return http.StatusGatewayTimeout, codeTransport, "Could not reach Facebook. Please try again."
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusInternalServerError, codeEncryptionKey, driven.ErrEncryptionKeyNotSet.Error()
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RestResponse is the success envelope shared with the webhook listener.
type RestResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// VerificationResponse acknowledges a verification ping.
type VerificationResponse struct {
	Received int64 `json:"received"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// UserResponse is the connected Facebook user.
type UserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PageResponse is a connected page without its token.
type PageResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Subscribed bool   `json:"subscribed"`
}

// ConnectionResponse is the JSON representation of the stored connection.
type ConnectionResponse struct {
	Connected bool           `json:"connected"`
	Mode      string         `json:"mode,omitempty"`
	User      *UserResponse  `json:"user,omitempty"`
	Pages     []PageResponse `json:"pages"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

// PageVerificationResponse reports a page's subscription check.
type PageVerificationResponse struct {
	PageID     string `json:"page_id"`
	Subscribed bool   `json:"subscribed"`
}

// FormResponse is a lead form summary.
type FormResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toConnectionResponse(record *model.CredentialRecord) ConnectionResponse {
	if record == nil {
		return ConnectionResponse{Pages: []PageResponse{}}
	}

	resp := ConnectionResponse{
		Connected: true,
		Mode:      string(record.Mode),
		User:      &UserResponse{ID: record.User.ID, Name: record.User.Name},
		Pages:     make([]PageResponse, 0, len(record.Pages)),
	}
	if !record.UpdatedAt.IsZero() {
		resp.UpdatedAt = record.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, p := range record.Pages {
		resp.Pages = append(resp.Pages, PageResponse{ID: p.ID, Name: p.Name, Subscribed: p.Subscribed})
	}
	return resp
}
