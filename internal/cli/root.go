package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/leadsync/internal/config"
)

// globalFlags are available to every command.
type globalFlags struct {
	EnvFiles []string
	Verbose  bool
	JSON     bool
}

// NewRootCommand builds the leadsync command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "leadsync",
		Short: "Facebook Lead Ads connector",
		Long: `leadsync connects a Facebook Lead Ads account to an automation engine.

It runs the OAuth connection flow, stores the page credentials, receives
leadgen webhooks and fetches the submitted leads.

Configuration is read from LEADSYNC_* environment variables and an optional
.env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVar(&flags.EnvFiles, "env-file", []string{".env"}, "env files to load before reading the environment")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")

	root.AddCommand(
		newServeCommand(flags),
		newStatusCommand(flags),
		newVerifyCommand(flags),
		newDisconnectCommand(flags),
	)

	return root
}

// Execute runs the root command with the given arguments.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (f *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// withApp loads configuration, wires the app and runs fn with it.
func (f *globalFlags) withApp(cmd *cobra.Command, fn func(a *app, logger *slog.Logger) error) error {
	logger := f.logger(cmd.ErrOrStderr())

	cfg, err := config.Load(f.EnvFiles...)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(logger)

	return fn(a, logger)
}
