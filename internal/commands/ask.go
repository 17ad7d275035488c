package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hearthfin/hearth/internal/bootstrap"
)

func newAskCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a free-text question about the imported transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				if owner == "" {
					owner = app.Config.DefaultAccountHolder
				}
				answer, err := app.QueryUC.Ask(cmd.Context(), owner, strings.Join(args, " "))
				if err != nil {
					return fmt.Errorf("answering question: %w", err)
				}
				fmt.Println(answer)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account holder (defaults to the configured one)")

	return cmd
}
