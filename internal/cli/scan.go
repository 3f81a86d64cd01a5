package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labingest/internal/application"
	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/core"
)

var scanFlags struct {
	adapter  string
	source   string
	dest     string
	profiles string
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the files a run would ingest, without touching the database",
	Long: `Scan an inbox with an adapter's filter and print the files a job would
process, in processing order. Files whose names already exist in the
archive folder are left out.

Extension and exclude overrides from the profiles file are applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := config.LoadProfiles(scanFlags.profiles)
		if err != nil {
			return err
		}

		svc := core.NewService(nil, core.Options{Filters: application.Filters(profiles)})
		files, err := svc.Preview(scanFlags.source, scanFlags.dest, scanFlags.adapter)
		if err != nil {
			return describe(err)
		}

		out := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintln(out, "No pending files")
			return nil
		}
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		fmt.Fprintf(out, "\n%d file(s) pending for %s\n", len(files), scanFlags.adapter)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanFlags.adapter, "adapter", "a", "", "instrument adapter key")
	scanCmd.Flags().StringVarP(&scanFlags.source, "source", "s", "", "inbox directory")
	scanCmd.Flags().StringVarP(&scanFlags.dest, "dest", "d", "", "archive directory")
	scanCmd.Flags().StringVar(&scanFlags.profiles, "profiles", envOr("INGEST_PROFILES_FILE", "profiles.yaml"), "watch profiles file with filter overrides")
	for _, name := range []string{"adapter", "source", "dest"} {
		_ = scanCmd.MarkFlagRequired(name)
	}
}
