// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultAPIVersion is the Graph API version used when LEADSYNC_FB_API_VERSION
// is not set.
const DefaultAPIVersion = "v18.0"

// OAuth holds the Facebook app identity and the URLs the OAuth flow needs.
// AppID, AppSecret and APIVersion each have their own override variable so
// deployments can rotate them without a rebuild.
type OAuth struct {
	AppID      string
	AppSecret  string
	APIVersion string

	// RedirectURL is the OAuth redirect endpoint registered with the app.
	RedirectURL string
	// SettingsURL is where the browser is sent after the OAuth flow ends.
	SettingsURL string
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	OAuth          OAuth
	ListenAddr     string
	DBPath         string
	PublicURL      string
	InstallationID string
	// GraphRateLimit is the maximum Graph API requests per second; 0 disables pacing.
	GraphRateLimit int
	// SecretKey is the 32-byte AES-256 key for token encryption, nil if unset.
	SecretKey []byte
	// AdminToken guards the management API; empty locks it.
	AdminToken string
	// GraphBaseURL is the Graph API host, overridable for proxies and tests.
	GraphBaseURL string
}

// HasAppCredentials returns true when both the app id and app secret are set.
// Without them the OAuth flow cannot exchange codes, but manual connections
// and verification still work.
func (c *Config) HasAppCredentials() bool {
	return c.OAuth.AppID != "" && c.OAuth.AppSecret != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Values from .env files in the working directory are loaded first; variables
// already present in the environment win.
// Optional variables with defaults: LEADSYNC_LISTEN_ADDR (127.0.0.1:8080),
// LEADSYNC_DB_PATH (leadsync.db), LEADSYNC_PUBLIC_URL (http://127.0.0.1:8080),
// LEADSYNC_SETTINGS_URL (<public url>/settings), LEADSYNC_INSTALLATION_ID (default),
// LEADSYNC_GRAPH_RATE_LIMIT (10), LEADSYNC_FB_API_VERSION (v18.0),
// LEADSYNC_ADMIN_TOKEN (empty, management API disabled),
// LEADSYNC_GRAPH_BASE_URL (https://graph.facebook.com/).
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			slog.Warn("could not load env file", "file", file, "error", err)
		}
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("LEADSYNC_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "leadsync.db"
	if v, ok := os.LookupEnv("LEADSYNC_DB_PATH"); ok {
		dbPath = v
	}

	publicURL := "http://127.0.0.1:8080"
	if v, ok := os.LookupEnv("LEADSYNC_PUBLIC_URL"); ok && v != "" {
		publicURL = strings.TrimRight(v, "/")
	}
	if _, err := url.ParseRequestURI(publicURL); err != nil {
		return nil, fmt.Errorf("LEADSYNC_PUBLIC_URL has invalid URL %q: %w", publicURL, err)
	}

	settingsURL := publicURL + "/settings"
	if v, ok := os.LookupEnv("LEADSYNC_SETTINGS_URL"); ok && v != "" {
		settingsURL = v
	}

	installationID := "default"
	if v, ok := os.LookupEnv("LEADSYNC_INSTALLATION_ID"); ok && v != "" {
		installationID = v
	}

	rateLimit := 10
	if v, ok := os.LookupEnv("LEADSYNC_GRAPH_RATE_LIMIT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("LEADSYNC_GRAPH_RATE_LIMIT must be a non-negative integer, got %q", v)
		}
		rateLimit = parsed
	}

	graphBaseURL := envOr("LEADSYNC_GRAPH_BASE_URL", "https://graph.facebook.com/")
	if _, err := url.ParseRequestURI(graphBaseURL); err != nil {
		return nil, fmt.Errorf("LEADSYNC_GRAPH_BASE_URL has invalid URL %q: %w", graphBaseURL, err)
	}

	var secretKey []byte
	if v := os.Getenv("LEADSYNC_SECRET_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("LEADSYNC_SECRET_KEY must be hex encoded: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("LEADSYNC_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		secretKey = key
	}

	return &Config{
		OAuth:          LoadOAuth(publicURL, settingsURL),
		ListenAddr:     listenAddr,
		DBPath:         dbPath,
		PublicURL:      publicURL,
		InstallationID: installationID,
		GraphRateLimit: rateLimit,
		SecretKey:      secretKey,
		AdminToken:     envOr("LEADSYNC_ADMIN_TOKEN", ""),
		GraphBaseURL:   graphBaseURL,
	}, nil
}

// LoadOAuth resolves the app identity from its compiled defaults and the
// LEADSYNC_FB_APP_ID, LEADSYNC_FB_APP_SECRET and LEADSYNC_FB_API_VERSION
// overrides. The redirect URL is derived from publicURL.
func LoadOAuth(publicURL, settingsURL string) OAuth {
	return OAuth{
		AppID:       envOr("LEADSYNC_FB_APP_ID", ""),
		AppSecret:   envOr("LEADSYNC_FB_APP_SECRET", ""),
		APIVersion:  envOr("LEADSYNC_FB_API_VERSION", DefaultAPIVersion),
		RedirectURL: publicURL + "/api/v1/integration/facebook-lead-ads/oauth",
		SettingsURL: settingsURL,
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
