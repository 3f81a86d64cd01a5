package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labingest/internal/core"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List registered instrument adapters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		defs := core.All()
		if len(defs) == 0 {
			fmt.Fprintln(out, "No adapters registered")
			return nil
		}

		fmt.Fprintf(out, "%-12s %-22s %-14s %-20s %s\n", "KEY", "INSTRUMENT", "GROUP", "TABLE", "KEY COLUMNS")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, def := range defs {
			fmt.Fprintf(out, "%-12s %-22s %-14s %-20s %s\n",
				def.Info.Key, def.Info.Label, def.Info.Group, def.Info.Table,
				strings.Join(def.KeyColumnNames(), ", "))
		}
		return nil
	},
}
