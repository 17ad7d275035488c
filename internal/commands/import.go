package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/core/domain"
)

func newImportCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a statement synchronously, without workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				return runImport(cmd, app, args[0], owner)
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account holder (defaults to the configured one)")

	return cmd
}

func runImport(cmd *cobra.Command, app *bootstrap.App, path, owner string) error {
	if owner == "" {
		owner = app.Config.DefaultAccountHolder
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading statement: %w", err)
	}

	ctx := cmd.Context()
	job, err := app.IntakeUC.Upload(ctx, owner, filepath.Base(path), content)
	if err != nil {
		return fmt.Errorf("opening import job: %w", err)
	}

	// Run both stages inline. Each stage claims the job status first, so the
	// queued handoffs are dropped as stale by any worker that picks them up.
	if err := app.ProcessUC.Run(ctx, domain.StageHandoff{JobID: job.ID}); err != nil {
		return fmt.Errorf("process stage: %w", err)
	}
	if err := app.CategorizeUC.Run(ctx, domain.StageHandoff{JobID: job.ID}); err != nil {
		return fmt.Errorf("categorize stage: %w", err)
	}

	final, err := app.ReaderUC.GetJob(ctx, owner, job.ID)
	if err != nil {
		return fmt.Errorf("fetching job: %w", err)
	}
	printJobDetail(os.Stdout, final)
	return nil
}
