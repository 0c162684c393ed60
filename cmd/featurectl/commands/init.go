package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const starterSpec = `version: "1"

backend:
  type: local
  path: featurectl.state.json

resources:
  feature:
    example:
      attributes:
        description: Replace this with a real feature
      files:
        - path/to/expected_file.go
`

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter spec file",
		Long: `Create a starter spec file in the current directory.

The generated file declares a single example resource and a local state
backend. Edit it to describe the features your codebase should have,
then run 'featurectl plan'.`,
		Example: `  # Create featurectl.yaml
  featurectl init

  # Create a spec under a different name
  featurectl init -f features.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("spec")

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("spec file %s already exists", path)
			}

			if err := os.WriteFile(path, []byte(starterSpec), 0644); err != nil {
				return fmt.Errorf("writing spec file: %w", err)
			}

			fmt.Printf("Created %s\n", path)
			fmt.Println("Edit it to declare your features, then run 'featurectl plan'.")
			return nil
		},
	}

	return cmd
}
