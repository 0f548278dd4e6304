package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
)

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show the stored Facebook connection",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(a *app, _ *slog.Logger) error {
				record, err := a.conn.Status(cmd.Context())
				if err != nil {
					return err
				}
				if flags.JSON {
					return writeStatusJSON(cmd.OutOrStdout(), record)
				}
				return writeStatus(cmd.OutOrStdout(), record)
			})
		},
	}
}

func newVerifyCommand(flags *globalFlags) *cobra.Command {
	var pageID, pageToken string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the stored tokens against Facebook",
		Long: `Check that the stored user token is still accepted by Facebook.
With --page, check instead that the page is still subscribed to leadgen events.
With --page and --token, check that the given page token is accepted, without
reading or changing the stored connection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pageToken != "" && pageID == "" {
				return errors.New("--token requires --page")
			}

			return flags.withApp(cmd, func(a *app, _ *slog.Logger) error {
				out := cmd.OutOrStdout()
				switch {
				case pageToken != "":
					page, err := a.verify.VerifyPageToken(cmd.Context(), pageID, pageToken)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out, "page token is valid for %s (%s)\n", page.Name, page.ID)
					return err
				case pageID != "":
					if err := a.verify.VerifyPage(cmd.Context(), pageID); err != nil {
						return err
					}
					_, err := fmt.Fprintf(out, "page %s is subscribed to leadgen events\n", pageID)
					return err
				}

				profile, err := a.verify.VerifyTokens(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "token is valid for %s (%s)\n", profile.Name, profile.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&pageID, "page", "", "verify the leadgen subscription of this page id")
	cmd.Flags().StringVar(&pageToken, "token", "", "verify this page access token instead of the stored one (requires --page)")

	return cmd
}

func newDisconnectCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Remove the stored Facebook connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withApp(cmd, func(a *app, _ *slog.Logger) error {
				if err := a.conn.Disconnect(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
				return err
			})
		},
	}
}

// statusView is the token-free JSON form of a credential record.
type statusView struct {
	Connected bool       `json:"connected"`
	Mode      string     `json:"mode,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	UserName  string     `json:"user_name,omitempty"`
	UpdatedAt string     `json:"updated_at,omitempty"`
	Pages     []pageView `json:"pages"`
}

type pageView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Subscribed bool   `json:"subscribed"`
}

func toStatusView(record *model.CredentialRecord) statusView {
	view := statusView{Pages: []pageView{}}
	if record == nil {
		return view
	}
	view.Connected = true
	view.Mode = string(record.Mode)
	view.UserID = record.User.ID
	view.UserName = record.User.Name
	if !record.UpdatedAt.IsZero() {
		view.UpdatedAt = record.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, p := range record.Pages {
		view.Pages = append(view.Pages, pageView{ID: p.ID, Name: p.Name, Subscribed: p.Subscribed})
	}
	return view
}

func writeStatusJSON(w io.Writer, record *model.CredentialRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toStatusView(record))
}

func writeStatus(w io.Writer, record *model.CredentialRecord) error {
	view := toStatusView(record)
	if !view.Connected {
		_, err := fmt.Fprintln(w, "not connected")
		return err
	}

	if _, err := fmt.Fprintf(w, "connected as %s (%s) via %s, updated %s\n\n",
		view.UserName, view.UserID, view.Mode, view.UpdatedAt); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PAGE ID\tNAME\tLEADGEN")
	for _, p := range view.Pages {
		subscribed := "subscribed"
		if !p.Subscribed {
			subscribed = "not subscribed"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, subscribed)
	}
	return tw.Flush()
}
