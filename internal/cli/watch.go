package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest the profile folders on an interval until interrupted",
	Long: `Start a job for every folder in the profiles file, then again every
interval. A folder whose previous job is still running is skipped for
that cycle.

Runs in the foreground; use the server with WATCH_ENABLED=true for a
long-running deployment with a dashboard.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := loadApp(ctx, nil)
		if err != nil {
			return err
		}
		defer closeApp(cmd, app)

		wc := app.WatchConfig()
		if len(wc.Folders) == 0 {
			return errors.New("no watch folders configured; add folders to " + app.Config.Ingest.ProfilesFile)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %d folder(s) every %s (Ctrl+C to stop)\n", len(wc.Folders), wc.Interval)
		app.Service.StartWatchScheduler(ctx, wc)
		fmt.Fprintln(cmd.OutOrStdout(), "Stopping, waiting for running jobs...")
		return nil
	},
}
