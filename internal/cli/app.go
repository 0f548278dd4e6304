// Package cli implements the leadsync command line.
package cli

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/leadsync/internal/adapter/driven/graph"
	"github.com/ericfisherdev/leadsync/internal/adapter/driven/sink"
	sqliteadapter "github.com/ericfisherdev/leadsync/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/leadsync/internal/application"
	"github.com/ericfisherdev/leadsync/internal/config"
	"github.com/ericfisherdev/leadsync/internal/metrics"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg     *config.Config
	db      *sqliteadapter.DB
	metrics *metrics.Metrics
	conn    *application.ConnectionService
	verify  *application.VerificationService
	leads   *application.LeadService
}

// newApp opens the database, runs migrations and wires adapters into the
// application services. Callers must Close the returned app.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.SecretKey == nil {
		logger.Warn("LEADSYNC_SECRET_KEY is not set, credential storage is disabled")
	}
	if cfg.AdminToken == "" {
		logger.Warn("LEADSYNC_ADMIN_TOKEN is not set, the management API will reject every request")
	}
	if !cfg.HasAppCredentials() {
		logger.Warn("LEADSYNC_FB_APP_ID or LEADSYNC_FB_APP_SECRET is not set, OAuth connections will fail and webhook signatures are not checked")
	}

	m := metrics.NewMetrics("leadsync")
	store := sqliteadapter.NewCredentialRepo(db, cfg.InstallationID, cfg.SecretKey)

	graphClient := graph.NewClient(
		graph.AppConfig{
			AppID:      cfg.OAuth.AppID,
			AppSecret:  cfg.OAuth.AppSecret,
			APIVersion: cfg.OAuth.APIVersion,
		},
		graph.WithBaseURL(cfg.GraphBaseURL),
		graph.WithRateLimit(cfg.GraphRateLimit),
		graph.WithMetrics(m),
		graph.WithLogger(logger),
	)

	oauthApp := application.OAuthApp{
		AppID:       cfg.OAuth.AppID,
		AppSecret:   cfg.OAuth.AppSecret,
		APIVersion:  cfg.OAuth.APIVersion,
		RedirectURL: cfg.OAuth.RedirectURL,
	}

	return &app{
		cfg:     cfg,
		db:      db,
		metrics: m,
		conn:    application.NewConnectionService(graphClient, store, oauthApp, m, logger),
		verify:  application.NewVerificationService(graphClient, store),
		leads:   application.NewLeadService(graphClient, store, sink.NewLogSink(logger), m, logger),
	}, nil
}

func (a *app) Close(logger *slog.Logger) {
	if err := a.db.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}
