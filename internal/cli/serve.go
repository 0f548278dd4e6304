package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/leadsync/internal/adapter/driving/http"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server that hosts the webhook listener, the OAuth
endpoints and the connection API. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(a *app, logger *slog.Logger) error {
				return serve(cmd.Context(), a, logger)
			})
		},
	}
}

// serve runs the HTTP server until ctx is cancelled or a signal arrives.
func serve(ctx context.Context, a *app, logger *slog.Logger) error {
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"listen_addr", a.cfg.ListenAddr,
		"db_path", a.cfg.DBPath,
		"public_url", a.cfg.PublicURL,
		"installation_id", a.cfg.InstallationID,
		"api_version", a.cfg.OAuth.APIVersion,
		"graph_rate_limit", a.cfg.GraphRateLimit,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := httphandler.NewHandler(a.conn, a.verify, a.leads, httphandler.Options{
		SettingsURL:   a.cfg.OAuth.SettingsURL,
		SecureCookies: strings.HasPrefix(a.cfg.PublicURL, "https://"),
		AdminToken:    a.cfg.AdminToken,
		WebhookSecret: a.cfg.OAuth.AppSecret,
	}, logger)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(h, a.metrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Webhook dispatch may wait on several 30s Graph calls.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
