// Package commands contains the CLI command implementations for hearthctl.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/buildinfo"
	"github.com/hearthfin/hearth/internal/config"
	"github.com/hearthfin/hearth/internal/observability/logging"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "hearthctl",
		Short:   "Operate the statement import pipeline",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Logs go to stderr so command output stays pipeable.
			slog.SetDefault(logging.NewTextLogger(os.Getenv("LOG_LEVEL")))
		},
	}

	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newForceCompleteCommand())
	rootCmd.AddCommand(newRetryCategorizeCommand())
	rootCmd.AddCommand(newImportErrorsCommand())
	rootCmd.AddCommand(newSeedCategoriesCommand())
	rootCmd.AddCommand(newAskCommand())

	return rootCmd
}

// withApp wires the full application for a single command invocation and
// tears it down afterwards.
func withApp(ctx context.Context, fn func(*bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, config.Load())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	return fn(app)
}
