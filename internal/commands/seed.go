package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hearthfin/hearth/internal/bootstrap"
)

func newSeedCategoriesCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-categories",
		Short: "Seed the category taxonomy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				path := file
				if path == "" {
					path = app.Config.CategorySeedFile
				}
				names, err := LoadCategorySeed(path)
				if err != nil {
					return err
				}
				created, err := app.SeedUC.Seed(cmd.Context(), names)
				if err != nil {
					return fmt.Errorf("seeding categories: %w", err)
				}
				fmt.Printf("Seeded %d new categories\n", created)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "taxonomy YAML (defaults to the configured seed file)")

	return cmd
}

// LoadCategorySeed reads category names from a taxonomy YAML file. A missing
// file is not an error: the built-in taxonomy applies then.
func LoadCategorySeed(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file: %w", err)
	}

	var doc struct {
		Categories []string `yaml:"categories"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing taxonomy file: %w", err)
	}
	return doc.Categories, nil
}
