package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/core/domain"
)

func newForceCompleteCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "force-complete <job-id>",
		Short: "Force a stuck job into a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				job, err := app.AdminUC.ForceComplete(cmd.Context(), args[0], domain.JobStatus(target))
				if err != nil {
					return fmt.Errorf("forcing job: %w", err)
				}
				fmt.Printf("Job %s forced to %s\n", job.ID, job.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&target, "status", string(domain.StatusCompleted), "terminal status to force (completed or failed)")

	return cmd
}

func newRetryCategorizeCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "retry-categorize <job-id>",
		Short: "Re-dispatch categorization for a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				if owner == "" {
					owner = app.Config.DefaultAccountHolder
				}
				job, err := app.AdminUC.RetryCategorize(cmd.Context(), owner, args[0])
				if err != nil {
					return fmt.Errorf("retrying categorization: %w", err)
				}
				fmt.Printf("Job %s re-queued for categorization (status %s)\n", job.ID, job.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account holder (defaults to the configured one)")

	return cmd
}

func newImportErrorsCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import-errors",
		Short: "List jobs that failed, with their recorded errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				if owner == "" {
					owner = app.Config.DefaultAccountHolder
				}
				jobs, err := app.ReaderUC.History(cmd.Context(), owner)
				if err != nil {
					return fmt.Errorf("listing jobs: %w", err)
				}
				printFailedJobs(os.Stdout, jobs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account holder (defaults to the configured one)")

	return cmd
}

func printFailedJobs(w io.Writer, jobs []domain.ImportJob) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tFILE\tERROR")
	for _, job := range jobs {
		if job.Status != domain.StatusFailed && job.Status != domain.StatusPartiallyFailed {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", job.ID, job.Status, job.Filename, job.ErrorMessage)
	}
	tw.Flush()
}
