package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/core/domain"
)

func newJobsCommand() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect import jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand())
	jobsCmd.AddCommand(newJobsShowCommand())

	return jobsCmd
}

func newJobsListCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import jobs, newest first",
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
				printJobTable(os.Stdout, jobs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account holder (defaults to the configured one)")

	return cmd
}

func newJobsShowCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one import job in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				if owner == "" {
					owner = app.Config.DefaultAccountHolder
				}
				job, err := app.ReaderUC.GetJob(cmd.Context(), owner, args[0])
				if err != nil {
					return fmt.Errorf("fetching job: %w", err)
				}
				printJobDetail(os.Stdout, job)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account holder (defaults to the configured one)")

	return cmd
}

func printJobTable(w io.Writer, jobs []domain.ImportJob) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tFILE\tROWS\tCATEGORIZED\tCREATED")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			job.ID, job.Status, job.Filename,
			job.ImportedRows, job.TotalRows, job.CategorizedRows,
			job.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func printJobDetail(w io.Writer, job *domain.ImportJob) {
	fmt.Fprintf(w, "Job:         %s\n", job.ID)
	fmt.Fprintf(w, "Owner:       %s\n", job.OwnerID)
	fmt.Fprintf(w, "File:        %s (%s)\n", job.Filename, job.Origin)
	if job.SourceType != "" {
		fmt.Fprintf(w, "Source:      %s\n", job.SourceType)
	}
	fmt.Fprintf(w, "Status:      %s\n", job.Status)
	fmt.Fprintf(w, "Rows:        %d total, %d imported, %d duplicates\n",
		job.TotalRows, job.ImportedRows, job.DuplicateRows)
	fmt.Fprintf(w, "Categorized: %d (%d left uncategorized)\n",
		job.CategorizedRows, job.UncategorizedRows)
	if job.ErrorMessage != "" {
		fmt.Fprintf(w, "Errors:      %s\n", job.ErrorMessage)
	}
	fmt.Fprintf(w, "Created:     %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:   %s\n", job.CompletedAt.Format(time.RFC3339))
	}
}
