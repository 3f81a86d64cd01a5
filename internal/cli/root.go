// Package cli provides the labingest command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labingest/internal/application"
	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/logging"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	envFile  string
	logLevel string
	logFile  string

	closeLog = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "labingest",
	Short: "Batch ingestion of laboratory instrument exports",
	Long: `labingest moves instrument exports from an inbox folder into the lab
database. Every file is parsed by its instrument adapter, upserted on its
natural key in one transaction, and then moved to the archive folder.
Files that fail stay in the inbox and are reported.

Configuration is read from the environment (and a .env file), the same
variables the server uses.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		closeLog = logging.Setup(logLevel, "text", logFile)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(adaptersCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadApp loads configuration and opens the store. mutate may adjust the
// configuration before it is used.
func loadApp(ctx context.Context, mutate func(*config.Config)) (*application.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	return application.New(ctx, cfg)
}

// closeApp stops the service and closes the store, reporting problems on stderr.
func closeApp(cmd *cobra.Command, app *application.App) {
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: shutdown: %v\n", err)
	}
}

// envOr returns the environment value of key, or def.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
