// Package httphandler is the HTTP driving adapter: the webhook listener, the
// OAuth endpoints and the connection management REST API.
package httphandler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/leadsync/internal/application"
	"github.com/ericfisherdev/leadsync/internal/metrics"
)

const (
	// IntegrationPath is the prefix of the routes Facebook and the settings
	// screen talk to.
	IntegrationPath = "/api/v1/integration/facebook-lead-ads"

	// StateCookie holds the OAuth nonce between /connect and /oauth.
	StateCookie = "fbla_state"

	stateCookieMaxAge = 10 * time.Minute
	maxBodyBytes      = 1 << 20
)

// Options configures browser-facing behavior of the Handler.
type Options struct {
	// SettingsURL is where the OAuth callback sends the user when done.
	SettingsURL string
	// SecureCookies marks the state cookie Secure; set when served over HTTPS.
	SecureCookies bool
	// AdminToken is the bearer token required on the management routes. When
	// empty those routes answer 401.
	AdminToken string
	// WebhookSecret is the app secret used to check X-Hub-Signature-256 on
	// webhook deliveries. When empty signatures are not checked.
	WebhookSecret string
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	conn      *application.ConnectionService
	verify    *application.VerificationService
	leads     *application.LeadService
	opts      Options
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	conn *application.ConnectionService,
	verify *application.VerificationService,
	leads *application.LeadService,
	opts Options,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		conn:      conn,
		verify:    verify,
		leads:     leads,
		opts:      opts,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with metrics, logging and recovery middleware. m may be nil, in which case
// /metrics is not served.
func NewServeMux(h *Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	admin := func(fn http.HandlerFunc) http.Handler {
		return requireAdminToken(h.opts.AdminToken, fn)
	}

	// Called by Facebook or the browser during the OAuth flow.
	mux.HandleFunc("POST "+IntegrationPath, h.Webhook)
	mux.HandleFunc("GET "+IntegrationPath+"/connect", h.Connect)
	mux.HandleFunc("GET "+IntegrationPath+"/oauth", h.OAuthCallback)

	mux.Handle("POST "+IntegrationPath+"/verification", admin(h.Verification))
	mux.Handle("POST "+IntegrationPath+"/manual", admin(h.ConnectManually))

	mux.Handle("GET /api/v1/connection", admin(h.ConnectionStatus))
	mux.Handle("DELETE /api/v1/connection", admin(h.Disconnect))
	mux.Handle("GET /api/v1/connection/verify", admin(h.VerifyTokens))
	mux.Handle("GET /api/v1/pages/{page}/verify", admin(h.VerifyPage))
	mux.Handle("GET /api/v1/pages/{page}/forms", admin(h.ListForms))
	mux.Handle("GET /api/v1/pages/{page}/forms/{form}", admin(h.GetFormFields))

	mux.HandleFunc("GET /api/v1/health", h.Health)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = metricsMiddleware(m, wrapped)

	return wrapped
}

// Webhook receives leadgen notifications. Deliveries with a bad signature and
// empty bodies are rejected; any other parsable body is acknowledged after
// its leads have been dispatched.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidData, "Could not read request body.")
		return
	}

	if h.opts.WebhookSecret != "" {
		if err := verifySignature(h.opts.WebhookSecret, r.Header.Get(SignatureHeader), body); err != nil {
			h.logger.Warn("rejected webhook delivery", "error", err)
			writeError(w, http.StatusUnauthorized, codeInvalidSignature, "Invalid webhook signature.")
			return
		}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("{}")) || bytes.Equal(body, []byte("null")) {
		writeError(w, http.StatusBadRequest, codeInvalidData, "No data provided.")
		return
	}

	outcomes, err := h.leads.HandleWebhook(r.Context(), body)
	if err != nil {
		h.writeServiceError(w, "webhook dispatch failed", err)
		return
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	h.logger.Info("webhook processed", "leads", len(outcomes), "failed", failed)

	writeJSON(w, http.StatusOK, RestResponse{
		Code:    codeSuccess,
		Message: "Data processed successfully.",
		Data:    json.RawMessage(body),
	})
}

// Verification acknowledges a verification ping from the settings screen.
func (h *Handler) Verification(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VerificationResponse{Received: time.Now().Unix()})
}

// Connect starts the OAuth flow: it issues a state nonce in a cookie and
// redirects to the Facebook login dialog.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     IntegrationPath,
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.conn.AuthorizationURL(state), http.StatusFound)
}

// OAuthCallback completes the OAuth flow. It always redirects to the settings
// URL, with an error_message parameter on failure.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var expected string
	if c, err := r.Cookie(StateCookie); err == nil {
		expected = c.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    "",
		Path:     IntegrationPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	// The user declined or Facebook reported a dialog error.
	if dialogErr := q.Get("error"); dialogErr != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = dialogErr
		}
		h.logger.Warn("facebook login dialog returned an error", "error", dialogErr)
		h.redirectToSettings(w, r, msg)
		return
	}

	_, err := h.conn.Complete(r.Context(), application.CallbackRequest{
		State:         q.Get("state"),
		ExpectedState: expected,
		Code:          q.Get("code"),
	})
	if err != nil {
		_, _, msg := classify(err)
		h.redirectToSettings(w, r, msg)
		return
	}

	h.redirectToSettings(w, r, "")
}

func (h *Handler) redirectToSettings(w http.ResponseWriter, r *http.Request, errorMessage string) {
	target := h.opts.SettingsURL
	if errorMessage != "" {
		u, err := url.Parse(target)
		if err != nil {
			h.logger.Error("invalid settings URL", "url", target, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
			return
		}
		params := u.Query()
		params.Set("error_message", h.sanitizer.Sanitize(errorMessage))
		u.RawQuery = params.Encode()
		target = u.String()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ConnectManually stores a connection from hand-entered tokens.
func (h *Handler) ConnectManually(w http.ResponseWriter, r *http.Request) {
	var req application.ManualConnection
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return
	}

	record, err := h.conn.ConnectManually(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "manual connection failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toConnectionResponse(record))
}

// ConnectionStatus reports the stored connection without its tokens.
func (h *Handler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	record, err := h.conn.Status(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to load connection", err)
		return
	}

	writeJSON(w, http.StatusOK, toConnectionResponse(record))
}

// Disconnect removes the stored connection.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.conn.Disconnect(r.Context()); err != nil {
		h.writeServiceError(w, "failed to disconnect", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyTokens checks the stored user token against Facebook.
func (h *Handler) VerifyTokens(w http.ResponseWriter, r *http.Request) {
	profile, err := h.verify.VerifyTokens(r.Context())
	if err != nil {
		h.writeServiceError(w, "token verification failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RestResponse{
		Code:    codeSuccess,
		Message: "Facebook access token is valid.",
		Data:    UserResponse{ID: profile.ID, Name: profile.Name},
	})
}

// VerifyPage checks the leadgen subscription of a connected page.
func (h *Handler) VerifyPage(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("page")

	if err := h.verify.VerifyPage(r.Context(), pageID); err != nil {
		h.writeServiceError(w, "page verification failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RestResponse{
		Code:    codeSuccess,
		Message: "The Facebook page is subscribed to leadgen events.",
		Data:    PageVerificationResponse{PageID: pageID, Subscribed: true},
	})
}

// ListForms lists the lead forms of a connected page.
func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := h.leads.Forms(r.Context(), r.PathValue("page"))
	if err != nil {
		h.writeServiceError(w, "failed to list forms", err)
		return
	}

	resp := make([]FormResponse, 0, len(forms))
	for _, f := range forms {
		resp = append(resp, FormResponse{ID: f.ID, Name: f.Name})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetFormFields returns the questions of one form.
func (h *Handler) GetFormFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.leads.FormFields(r.Context(), r.PathValue("page"), r.PathValue("form"))
	if err != nil {
		h.writeServiceError(w, "failed to get form fields", err)
		return
	}

	writeJSON(w, http.StatusOK, fields)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps err to a status and error code. Server-side failures
// are logged; client errors are not.
func (h *Handler) writeServiceError(w http.ResponseWriter, logMsg string, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, "code", code, "error", err)
	}
	writeError(w, status, code, msg)
}
