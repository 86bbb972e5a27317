package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"trackpoint/apps"

	"github.com/spf13/cobra"
)

func newAppsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage registered apps",
	}

	var origins []string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Register an app and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openApps(root)
			if err != nil {
				return err
			}
			defer mgr.Close()

			app, err := mgr.CreateApp(args[0], origins...)
			if err != nil {
				return err
			}
			printApps(cmd.OutOrStdout(), []*apps.App{app})
			return nil
		},
	}
	create.Flags().StringSliceVar(&origins, "origin", nil, "allowed browser origin (repeatable)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openApps(root)
			if err != nil {
				return err
			}
			defer mgr.Close()
			printApps(cmd.OutOrStdout(), mgr.ListApps())
			return nil
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func openApps(root *rootOptions) (*apps.Manager, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	mgr, err := apps.NewManager(cfg.Apps.Path)
	if err != nil {
		return nil, fmt.Errorf("load apps: %w", err)
	}
	return mgr, nil
}

func printApps(w io.Writer, list []*apps.App) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAPI KEY\tORIGINS\tCREATED")
	for _, app := range list {
		origins := strings.Join(app.AllowedOrigins, ",")
		if origins == "" {
			origins = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", app.ID, app.Name, app.APIKey, origins, app.CreatedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}
